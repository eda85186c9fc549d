package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/JoaquinMulet/depita-bot/models"
)

// CSVWriter dumps the raw listings of one scrape run to a CSV file, before
// identity resolution. Useful when debugging what a run actually extracted.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if err := w.Write([]string{
		"title", "location", "currency", "amount", "area_m2", "bedrooms",
		"raw_attributes", "image_url", "link", "scraped_at",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRaw appends the given raw listings to the CSV file.
func (c *CSVWriter) WriteRaw(listings []*models.RawListing) error {
	for _, l := range listings {
		area := ""
		if l.AreaM2 != nil {
			area = strconv.FormatFloat(*l.AreaM2, 'f', 2, 64)
		}
		bedrooms := ""
		if l.Bedrooms != nil {
			bedrooms = strconv.Itoa(*l.Bedrooms)
		}

		row := []string{
			l.Title,
			l.Location,
			l.Currency,
			strconv.FormatFloat(l.Amount, 'f', 2, 64),
			area,
			bedrooms,
			l.RawAttributes,
			l.ImageURL,
			l.Link,
			l.ScrapedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
