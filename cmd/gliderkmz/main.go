package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gliderkmz/internal/config"
	"gliderkmz/internal/gliderapi"
	"gliderkmz/internal/refresh"
	"gliderkmz/internal/web"
)

func main() {
	var configPath string
	var once bool
	var summaryPath string
	flag.StringVar(&configPath, "config", "./configs/gliderkmz.yaml", "Path to YAML config")
	flag.BoolVar(&once, "once", false, "Render one document and exit")
	flag.StringVar(&summaryPath, "summary", "", "Print a summary of a rendered .kml/.kmz file and exit")
	flag.Parse()

	if summaryPath != "" {
		if err := printOutputSummary(os.Stdout, summaryPath); err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		return
	}

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	thresholds, err := config.LoadThresholds(cfg.ThresholdsPath)
	if err != nil {
		log.Fatalf("thresholds load failed: %v", err)
	}
	if err := config.CheckSensors(cfg.Sensors, thresholds); err != nil {
		log.Fatalf("thresholds check failed: %v", err)
	}

	client, err := gliderapi.New(gliderapi.Config{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout})
	if err != nil {
		log.Fatalf("api client init failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	status := web.NewStatus()
	r, err := newRenderer(cfg, client, thresholds, status)
	if err != nil {
		log.Fatalf("renderer init failed: %v", err)
	}

	log.Printf("gliderkmz starting")
	log.Printf("api base_url=%s gliders=%d sensors=%v", cfg.API.BaseURL, len(cfg.Gliders), cfg.Sensors)
	log.Printf("kml type=%s output=%s templates_dir=%q", cfg.KML.Type, cfg.KML.Output, cfg.KML.TemplatesDir)

	if once {
		if err := r.Pass(ctx, "once"); err != nil {
			log.Fatalf("render failed: %v", err)
		}
		return
	}

	runner, err := refresh.New(refresh.Config{Name: "render", Interval: cfg.Refresh.Interval})
	if err != nil {
		log.Fatalf("refresh init failed: %v", err)
	}
	status.SetStatic(cfg.KML.Output, cfg.KML.Type, runner)

	if err := runner.Start(ctx, r.Pass); err != nil {
		log.Fatalf("refresh start failed: %v", err)
	}
	defer runner.Close()
	log.Printf("refresh interval=%s", cfg.Refresh.Interval)

	if cfg.Web.Enable {
		log.Printf("web listen=%s", cfg.Web.Listen)
		go func() {
			err := web.Serve(ctx, cfg.Web.Listen, status, logs, runner.Trigger)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("web server stopped: %v", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	log.Printf("gliderkmz stopping")
}
