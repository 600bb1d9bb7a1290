package progress

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/logger"
)

func TestCountLines(t *testing.T) {
	if _, err := exec.LookPath("wc"); err != nil {
		t.Skip("wc not available")
	}
	dir := t.TempDir()
	plain := filepath.Join(dir, "meta.json")
	require.NoError(t, os.WriteFile(plain, []byte("a\nb\nc\n"), 0o644))

	assert.Equal(t, 3, CountLines(context.Background(), plain+".gz"))
	assert.Equal(t, 3, CountLines(context.Background(), plain))
}

func TestCountLines_MissingFileIsUnknown(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json.gz")
	assert.Equal(t, Unknown, CountLines(context.Background(), missing))
}

func TestBar(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	bar := New(logger.FromCore(core), "books", 1500, 2)

	for i := 0; i < 5; i++ {
		bar.Next()
	}
	bar.Finish()

	progress := logs.FilterMessage("stage progress").All()
	require.Len(t, progress, 2)
	assert.Equal(t, "4", progress[1].ContextMap()["done"])

	finished := logs.FilterMessage("stage finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "5", finished[0].ContextMap()["done"])
	assert.Equal(t, "1,500", finished[0].ContextMap()["of"])
}

func TestBar_UnknownMax(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	bar := New(logger.FromCore(core), "reviews", Unknown, 0)
	bar.Next()
	bar.Finish()

	assert.Equal(t, "unknown", logs.FilterMessage("stage started").All()[0].ContextMap()["expected"])
	assert.Equal(t, "unknown", logs.FilterMessage("stage finished").All()[0].ContextMap()["of"])
}
