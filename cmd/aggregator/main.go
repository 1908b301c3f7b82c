package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/config"
	"github.com/saiset-co/sai-aggregator/logger"
	"github.com/saiset-co/sai-aggregator/metrics"
	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config.yml (defaults to $"+config.EnvConfigPath+")")
	category := flag.String("category", string(types.CategoryWeb), "web, images, videos, news or weather")
	query := flag.String("q", "", "search query")
	page := flag.Int("page", 1, "1-based result page")
	safe := flag.Int("safe", types.SafeSearchModerate, "safe search level 0-2")
	checkHealth := flag.Bool("health", false, "print a health report and exit")
	serveMetrics := flag.Bool("serve-metrics", false, "keep serving metrics until interrupted")
	flag.Parse()

	cfg, err := config.NewLoader().LoadFromFile(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	l, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, l)
	if err != nil {
		l.ErrorWithErrStack("Failed to start aggregator", err)
		return 1
	}
	defer app.Close()

	if *checkHealth {
		report := app.Health(ctx)
		data, err := utils.MarshalIndent(report)
		if err != nil {
			l.Error("Failed to encode health report", zap.Error(err))
			return 1
		}
		fmt.Println(string(data))
		if report.Status == types.StatusUnhealthy {
			return 3
		}
		return 0
	}

	if *query != "" {
		resp, err := app.Search(ctx, types.Category(*category), *query, types.SearchOptions{
			Page:       *page,
			SafeSearch: *safe,
		})
		if err != nil {
			l.Error("Search failed", zap.Error(err))
			return 2
		}

		data, err := utils.MarshalIndent(resp)
		if err != nil {
			l.Error("Failed to encode response", zap.Error(err))
			return 1
		}
		fmt.Println(string(data))
	}

	if !*serveMetrics {
		return 0
	}

	server, err := metrics.NewServer(cfg.Metrics, app.Metrics(), l)
	if err != nil {
		l.Error("Metrics are not servable, enable them in config", zap.Error(err))
		return 1
	}

	if err = server.Run(ctx); err != nil {
		l.Error("Metrics server stopped", zap.Error(err))
		return 1
	}
	return 0
}
