package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoaquinMulet/depita-bot/utils"
)

const cmfBaseURL = "https://api.cmfchile.cl/api-sbifv3/recursos_api"

// RateSource provides the daily UF conversion rate.
type RateSource interface {
	// CurrentRate returns today's UF value in pesos, falling back to
	// yesterday's before giving up.
	CurrentRate(ctx context.Context) (float64, error)
}

// UFClient fetches the daily UF value from the CMF Chile API.
type UFClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

// NewUFClient builds a UF client against the public CMF API.
func NewUFClient(apiKey string, log zerolog.Logger) *UFClient {
	return &UFClient{
		apiKey:  apiKey,
		baseURL: cmfBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
		now:     time.Now,
	}
}

// NewUFClientWithBase is NewUFClient with an overridable base URL and clock,
// used by tests.
func NewUFClientWithBase(apiKey, baseURL string, now func() time.Time, log zerolog.Logger) *UFClient {
	c := NewUFClient(apiKey, log)
	c.baseURL = baseURL
	if now != nil {
		c.now = now
	}
	return c
}

type ufResponse struct {
	UFs []struct {
		Fecha string `json:"Fecha"`
		Valor string `json:"Valor"`
	} `json:"UFs"`
}

// CurrentRate returns today's UF value, retrying with yesterday's date when
// today's is not yet published or the call fails. Only when both days fail is
// the run unpriceable.
func (c *UFClient) CurrentRate(ctx context.Context) (float64, error) {
	today := c.now()

	value, err := c.rateFor(ctx, today)
	if err == nil {
		return value, nil
	}
	c.log.Warn().Err(err).Msg("today's UF value unavailable, trying yesterday")

	value, yerr := c.rateFor(ctx, today.AddDate(0, 0, -1))
	if yerr != nil {
		return 0, fmt.Errorf("uf: no rate for today (%v) nor yesterday: %w", err, yerr)
	}
	return value, nil
}

func (c *UFClient) rateFor(ctx context.Context, day time.Time) (float64, error) {
	url := fmt.Sprintf("%s/uf/%04d/%02d/dias/%02d?apikey=%s&formato=json",
		c.baseURL, day.Year(), int(day.Month()), day.Day(), c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("uf: build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("uf: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("uf: unexpected status %d", resp.StatusCode)
	}

	var parsed ufResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("uf: decode response: %w", err)
	}
	if len(parsed.UFs) == 0 {
		return 0, fmt.Errorf("uf: empty response for %s", day.Format("2006-01-02"))
	}

	value, err := utils.ParseChileanNumber(parsed.UFs[0].Valor)
	if err != nil {
		return 0, fmt.Errorf("uf: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("uf: non-positive value %.2f", value)
	}
	return value, nil
}
