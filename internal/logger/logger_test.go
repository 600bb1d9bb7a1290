package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromCore(core)

	log.Info("connecting", "uri", "neo4j://localhost:7687", "NEO4J_PWD", "hunter2", "password", "x")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "neo4j://localhost:7687", fields["uri"])
	assert.Equal(t, "[REDACTED]", fields["NEO4J_PWD"])
	assert.Equal(t, "[REDACTED]", fields["password"])
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromCore(core).With("run_id", "r-1")

	log.Warn("slow")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "r-1", logs.All()[0].ContextMap()["run_id"])
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"development", "production"} {
		log, err := New(mode)
		require.NoError(t, err)
		assert.NotNil(t, log.SugaredLogger)
	}
}
