package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periodetl/internal/logger"
)

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := logger.Component(logger.New(logger.Config{Level: "debug", Output: &buf}), "load")

	l.Info().Str("family", "schools").Msg("loaded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "load", line["component"])
	assert.Equal(t, "schools", line["family"])
	assert.Equal(t, "periodetl", line["service"])
	assert.Equal(t, "loaded", line["message"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Level: "warn", Output: &buf})

	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNew_BadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Level: "loud", Output: &buf})

	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	l.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}
