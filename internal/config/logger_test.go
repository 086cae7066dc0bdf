package config

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestLoggerConfigure(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error", "INFO"} {
		t.Run(level, func(t *testing.T) {
			cfg := &Logger{Level: level, Output: &bytes.Buffer{}}
			logger, err := cfg.Configure()
			gt.NoError(t, err)
			gt.NotNil(t, logger)
		})
	}
}

func TestLoggerInvalidLevel(t *testing.T) {
	cfg := &Logger{Level: "verbose", Output: &bytes.Buffer{}}
	_, err := cfg.Configure()
	gt.Error(t, err)
}

func TestLoggerJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &Logger{Level: "warn", JSON: true, Output: buf}
	logger, err := cfg.Configure()
	gt.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("archive sizes do not add up", "archive", "BIN_0x00000001")

	var rec map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	gt.Equal(t, rec["msg"], any("archive sizes do not add up"))
	gt.Equal(t, rec["archive"], any("BIN_0x00000001"))
}

func TestLoggerConsole(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &Logger{Level: "info", Output: buf}
	logger, err := cfg.Configure()
	gt.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("fetching manifest")
	gt.String(t, buf.String()).Contains("fetching manifest")
	gt.String(t, buf.String()).NotContains("hidden")
}
