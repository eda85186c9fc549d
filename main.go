package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/JoaquinMulet/depita-bot/config"
	"github.com/JoaquinMulet/depita-bot/logger"
	"github.com/JoaquinMulet/depita-bot/models"
	"github.com/JoaquinMulet/depita-bot/notify"
	"github.com/JoaquinMulet/depita-bot/scraper/portal"
	"github.com/JoaquinMulet/depita-bot/services"
	"github.com/JoaquinMulet/depita-bot/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	command := "all"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "scrape":
		os.Exit(runScrape(cfg))
	case "analyze":
		os.Exit(runAnalyze(cfg))
	case "monitor":
		os.Exit(runMonitor(cfg))
	case "all":
		os.Exit(runAll(cfg))
	default:
		fmt.Fprintf(os.Stderr, "usage: depita-bot [scrape|analyze|monitor|all]\n")
		os.Exit(2)
	}
}

// runAll runs the full pipeline. A scrape failure stops the sequence; the
// analyzer and the monitor still run after each other's failures so a partial
// run keeps its value.
func runAll(cfg *config.Config) int {
	log := logger.ForComponent("pipeline")

	if rc := runScrape(cfg); rc != 0 {
		log.Error().Msg("scrape failed, stopping the sequence")
		return rc
	}

	exit := 0
	if rc := runAnalyze(cfg); rc != 0 {
		log.Error().Msg("analyze failed, continuing")
		exit = rc
	}
	if rc := runMonitor(cfg); rc != 0 {
		log.Error().Msg("monitor failed, continuing")
		exit = rc
	}
	return exit
}

func runScrape(cfg *config.Config) int {
	log := logger.ForComponent(models.ComponentScraper)
	ctx := context.Background()

	if err := cfg.ValidateScraper(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	notifier := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)

	store, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("store unreachable")
		alert(ctx, notifier, models.ComponentScraper, err)
		return 1
	}
	defer store.Close()

	logID, err := store.LogStart(ctx, models.ComponentScraper)
	if err != nil {
		log.Error().Err(err).Msg("could not record run start")
		return 1
	}

	status, err := scrapeAndIngest(ctx, cfg, store, notifier, log)
	if err != nil {
		log.Error().Err(err).Msg("scrape run failed")
		finishLog(ctx, store, logID, models.StatusFailure, err.Error(), log)
		alert(ctx, notifier, models.ComponentScraper, err)
		return 1
	}

	finishLog(ctx, store, logID, status, "", log)
	return 0
}

func scrapeAndIngest(ctx context.Context, cfg *config.Config, store storage.Store,
	notifier notify.Notifier, log zerolog.Logger) (string, error) {

	ufClient := services.NewUFClient(cfg.CMFAPIKey, log)
	ufRate, err := ufClient.CurrentRate(ctx)
	if err != nil {
		return "", err
	}
	log.Info().Float64("uf", ufRate).Msg("UF rate resolved")

	scraper := portal.New(cfg, log)
	listings, failed := scraper.Scrape(ctx)
	for _, f := range failed {
		alertText := fmt.Sprintf("La URL `%s` agotó sus reintentos:\n%s",
			f.URL, notify.Escape(f.Err.Error()))
		if res := notifier.Alert(ctx, alertText); res.Status == notify.Failed {
			log.Error().Err(res.Err).Msg("failed-url alert delivery failed")
		}
	}

	if cfg.CSVOutputPath != "" && len(listings) > 0 {
		if err := dumpRawCSV(cfg.CSVOutputPath, listings); err != nil {
			log.Warn().Err(err).Msg("raw CSV dump failed")
		}
	}

	if len(listings) == 0 {
		status, err := emptyRunStatus(len(failed), len(cfg.ScrapeURLs))
		if err != nil {
			return "", err
		}
		log.Info().Msg("no listings extracted")
		return status, nil
	}

	ingester := services.NewIngester(store, notifier, log)
	if _, err := ingester.Ingest(ctx, listings, ufRate); err != nil {
		return "", err
	}
	return models.StatusSuccess, nil
}

func runAnalyze(cfg *config.Config) int {
	log := logger.ForComponent(models.ComponentAnalyzer)
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	notifier := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)

	store, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("store unreachable")
		alert(ctx, notifier, models.ComponentAnalyzer, err)
		return 1
	}
	defer store.Close()

	logID, err := store.LogStart(ctx, models.ComponentAnalyzer)
	if err != nil {
		log.Error().Err(err).Msg("could not record run start")
		return 1
	}

	analyzer := services.NewAnalyzer(store, notifier, log)
	summary, err := analyzer.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("metrics pass failed")
		finishLog(ctx, store, logID, models.StatusFailure, err.Error(), log)
		alert(ctx, notifier, models.ComponentAnalyzer, err)
		return 1
	}

	status := models.StatusSuccess
	if summary.Empty {
		status = models.StatusSuccessEmpty
	}
	finishLog(ctx, store, logID, status, "", log)
	return 0
}

func runMonitor(cfg *config.Config) int {
	log := logger.ForComponent(models.ComponentMonitor)
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	notifier := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)

	store, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("store unreachable")
		alert(ctx, notifier, models.ComponentMonitor, err)
		return 1
	}
	defer store.Close()

	if _, err := services.NewMonitor(store, notifier, cfg.MonitorThresholds, log).Check(ctx); err != nil {
		log.Error().Err(err).Msg("health check failed")
		alert(ctx, notifier, models.ComponentMonitor, err)
		return 1
	}
	return 0
}

// emptyRunStatus decides how a run that extracted nothing is recorded. When
// every configured URL exhausted its retries the scraper is broken, not
// looking at an empty market, and the run must fail.
func emptyRunStatus(failedURLs, totalURLs int) (string, error) {
	if totalURLs > 0 && failedURLs == totalURLs {
		return "", fmt.Errorf("scrape: all %d URLs exhausted their retries", totalURLs)
	}
	return models.StatusSuccessEmpty, nil
}

func dumpRawCSV(path string, listings []*models.RawListing) error {
	writer, err := storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	defer writer.Close()
	return writer.WriteRaw(listings)
}

func finishLog(ctx context.Context, store storage.Store, id int64, status, errMsg string, log zerolog.Logger) {
	if err := store.LogFinish(ctx, id, status, errMsg); err != nil {
		log.Error().Err(err).Msg("could not record run outcome")
	}
}

func alert(ctx context.Context, notifier notify.Notifier, component string, cause error) {
	text := fmt.Sprintf("El componente `%s` falló:\n%s", component, notify.Escape(cause.Error()))
	notifier.Alert(ctx, text)
}
