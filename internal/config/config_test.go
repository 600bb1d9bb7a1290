package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("NEO4J_PWD", "secret")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "neo4j://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.User)
	assert.Equal(t, "secret", cfg.Neo4j.Password)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
	assert.Equal(t, 10*time.Second, cfg.Neo4j.Timeout)
	assert.Equal(t, "meta_Books_1k.json.gz", cfg.MetaFile)
	assert.Equal(t, "Books_5_1k.json.gz", cfg.ReviewsFile)
	assert.Equal(t, 100, cfg.ProgressEvery)
}

func TestParse_PasswordOnlyNeededToConnect(t *testing.T) {
	t.Setenv("NEO4J_PWD", "")
	require.NoError(t, os.Unsetenv("NEO4J_PWD"))

	cfg, err := Parse()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Neo4j.Validate(), "NEO4J_PWD")

	cfg.Neo4j.Password = "secret"
	assert.NoError(t, cfg.Neo4j.Validate())
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("NEO4J_PWD", "secret")
	t.Setenv("NEO4J_URI", "bolt://db:7687")
	t.Setenv("BOOKGRAPH_META_FILE", "meta.gz")
	t.Setenv("PROGRESS_EVERY", "5")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "bolt://db:7687", cfg.Neo4j.URI)
	assert.Equal(t, "meta.gz", cfg.MetaFile)
	assert.Equal(t, 5, cfg.ProgressEvery)
}

func TestParse_RejectsZeroProgress(t *testing.T) {
	t.Setenv("NEO4J_PWD", "secret")
	t.Setenv("PROGRESS_EVERY", "0")

	_, err := Parse()
	assert.Error(t, err)
}

func TestLoad_DotenvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NEO4J_PWD=fromfile\nNEO4J_USER=reader\n"), 0o600))
	t.Setenv("NEO4J_PWD", "fromenv")
	t.Setenv("NEO4J_USER", "")
	require.NoError(t, os.Unsetenv("NEO4J_USER"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Neo4j.Password)
	assert.Equal(t, "reader", cfg.Neo4j.User)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	t.Setenv("NEO4J_PWD", "secret")

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
