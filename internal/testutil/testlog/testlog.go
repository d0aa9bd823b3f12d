package testlog

import (
	"testing"

	"github.com/danmuck/extpipe/internal/logging"
	"github.com/rs/zerolog"
)

// Start returns a test-scoped logger that writes through t.Log.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	log := logging.New(logging.ProfileTest, zerolog.NewTestWriter(t), "")
	log.Info().Msgf("test=%s", t.Name())
	return log
}
