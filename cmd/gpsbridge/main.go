package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"gpsbridge/internal/config"
	"gpsbridge/internal/logging"
	"gpsbridge/internal/ntrip"
	"gpsbridge/internal/web"
)

func main() {
	var (
		configPath  string
		summaryPath string
		sourceTable bool
	)
	flag.StringVar(&configPath, "config", "./gpsbridge.yaml", "Path to YAML config")
	flag.StringVar(&summaryPath, "log-summary", "", "Print a summary of an NMEA capture and exit")
	flag.BoolVar(&sourceTable, "sourcetable", false, "Print the NTRIP caster source table as JSON and exit")
	flag.Parse()

	if summaryPath != "" {
		if err := printLogSummary(summaryPath); err != nil {
			fmt.Fprintf(os.Stderr, "log summary failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	logCloser, err := logging.Setup(cfg.Log, logs)
	if err != nil {
		log.Fatalf("logging setup failed: %v", err)
	}
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if sourceTable {
		if err := printSourceTable(ctx, cfg.NTRIP); err != nil {
			log.Fatalf("source table: %v", err)
		}
		return
	}

	rt, err := newBridge(cfg, logs)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	log.WithField("config", configPath).Info("gpsbridge starting")
	if err := rt.run(ctx); err != nil {
		log.WithError(err).Error("gpsbridge stopped with errors")
		os.Exit(1)
	}
	log.Info("gpsbridge stopped")
}

func printSourceTable(ctx context.Context, cfg config.NTRIPConfig) error {
	if cfg.Addr == "" {
		return fmt.Errorf("ntrip.addr is not set")
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout+cfg.ReadTimeout+5*time.Second)
	defer cancel()

	st, err := newNTRIPClient(cfg).GetSourceTable(ctx)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("%s did not return a source table", cfg.Addr)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func newNTRIPClient(cfg config.NTRIPConfig) *ntrip.Client {
	return ntrip.NewClient(ntrip.Config{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		UserAgent:   cfg.UserAgent,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
		GGAInterval: cfg.GGAInterval,
	})
}
