// Package logging configures logrus for the bridge: console output, an
// optional in-memory copy for the web UI, and an optional rotated log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"gpsbridge/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures the standard logger. extra, when non-nil, receives a copy
// of the console output. The returned closer releases the log file.
func Setup(cfg config.LogConfig, extra io.Writer) (io.Closer, error) {
	return Configure(log.StandardLogger(), cfg, os.Stderr, extra)
}

func Configure(logger *log.Logger, cfg config.LogConfig, console, extra io.Writer) (io.Closer, error) {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	out := console
	if extra != nil {
		out = io.MultiWriter(console, extra)
	}
	logger.SetOutput(out)

	if cfg.File == "" {
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	fileFmt := &log.TextFormatter{DisableColors: true, FullTimestamp: true}
	logger.AddHook(lfshook.NewHook(lfshook.WriterMap{
		log.PanicLevel: lj,
		log.FatalLevel: lj,
		log.ErrorLevel: lj,
		log.WarnLevel:  lj,
		log.InfoLevel:  lj,
		log.DebugLevel: lj,
		log.TraceLevel: lj,
	}, fileFmt))
	return lj, nil
}
