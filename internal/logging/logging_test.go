package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsbridge/internal/config"
)

func TestConfigure_ConsoleAndExtra(t *testing.T) {
	logger := log.New()
	var console, extra bytes.Buffer

	closer, err := Configure(logger, config.LogConfig{Level: "warn"}, &console, &extra)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.WithField("port", "/dev/ttyUSB0").Warn("receiver silent")

	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "receiver silent")
	assert.Contains(t, console.String(), "port=/dev/ttyUSB0")
	assert.Equal(t, console.String(), extra.String())
}

func TestConfigure_BadLevel(t *testing.T) {
	_, err := Configure(log.New(), config.LogConfig{Level: "loud"}, &bytes.Buffer{}, nil)
	assert.Error(t, err)
}

func TestConfigure_WritesRotatedFile(t *testing.T) {
	logger := log.New()
	path := filepath.Join(t.TempDir(), "logs", "gpsbridge.log")

	closer, err := Configure(logger, config.LogConfig{
		Level:      "debug",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	}, &bytes.Buffer{}, nil)
	require.NoError(t, err)

	logger.Debug("ntrip relay connected")
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ntrip relay connected")
	assert.Contains(t, string(content), "level=debug")
}
