package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snake-market/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestSetupWritesConsoleAndFile(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "market.log")
	var console bytes.Buffer
	closer := setup(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, &console)

	log.Debug().Msg("hidden")
	log.Info().Str("user_id", "p1").Msg("Points awarded")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "Points awarded")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user_id":"p1"`)
}
