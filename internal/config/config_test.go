package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadResolvesMasterKeyFromEnv(t *testing.T) {
	t.Setenv("AGENT_MASTER_KEY", "super-secret")
	t.Setenv("AGENT_JWT_SECRET", "jwt-secret")
	path := writeConfig(t, `
DATABASE_DSN = "agent.db"
MASTER_KEY_ENV = "AGENT_MASTER_KEY"
JWT_SECRET_ENV = "AGENT_JWT_SECRET"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "super-secret", cfg.MasterKey())
	require.Equal(t, 8090, cfg.HTTPPort, "unset HTTP_PORT falls back to default")
}

func TestLoadResolvesMasterKeyFromFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "master.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("from-file\n"), 0o600))
	t.Setenv("AGENT_JWT_SECRET", "jwt-secret")
	path := writeConfig(t, `
DATABASE_DSN = "agent.db"
MASTER_KEY_FILE = "`+keyPath+`"
JWT_SECRET_ENV = "AGENT_JWT_SECRET"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.MasterKey())
}

func TestLoadFailsWithoutMasterKeyIndirection(t *testing.T) {
	path := writeConfig(t, `DATABASE_DSN = "agent.db"`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadFailsWithoutJWTSecretIndirection(t *testing.T) {
	t.Setenv("AGENT_MASTER_KEY", "k")
	path := writeConfig(t, `
DATABASE_DSN = "agent.db"
MASTER_KEY_ENV = "AGENT_MASTER_KEY"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadFailsWhenEnabledBackendMissingEndpoint(t *testing.T) {
	t.Setenv("AGENT_MASTER_KEY", "k")
	t.Setenv("AGENT_JWT_SECRET", "jwt-secret")
	path := writeConfig(t, `
DATABASE_DSN = "agent.db"
MASTER_KEY_ENV = "AGENT_MASTER_KEY"
JWT_SECRET_ENV = "AGENT_JWT_SECRET"

[ORDERBOOK]
ENABLED = true
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadParsesPollIntervals(t *testing.T) {
	t.Setenv("AGENT_MASTER_KEY", "k")
	t.Setenv("AGENT_JWT_SECRET", "jwt-secret")
	path := writeConfig(t, `
DATABASE_DSN = "agent.db"
MASTER_KEY_ENV = "AGENT_MASTER_KEY"
JWT_SECRET_ENV = "AGENT_JWT_SECRET"

[INTERVALS]
EXECUTOR_INTERVAL = "2s"
ORACLE_INTERVAL = "500ms"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "2s", cfg.Intervals.Executor.Duration.String())
	require.Equal(t, "500ms", cfg.Intervals.Oracle.Duration.String())
}

func TestLoadSeedsTrackedDocuments(t *testing.T) {
	t.Setenv("AGENT_MASTER_KEY", "k")
	t.Setenv("AGENT_JWT_SECRET", "jwt-secret")
	path := writeConfig(t, `
DATABASE_DSN = "agent.db"
MASTER_KEY_ENV = "AGENT_MASTER_KEY"
JWT_SECRET_ENV = "AGENT_JWT_SECRET"

[[TRACKED_DOCUMENTS]]
DOC_ID = "doc-1"
DISPLAY_NAME = "Treasury One"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.TrackedDocuments, 1)
	require.Equal(t, "doc-1", cfg.TrackedDocuments[0].DocID)
}

func TestLoadFailsWhenMetricsAuthEnabledWithoutSecret(t *testing.T) {
	t.Setenv("AGENT_MASTER_KEY", "k")
	t.Setenv("AGENT_JWT_SECRET", "jwt-secret")
	path := writeConfig(t, `
DATABASE_DSN = "agent.db"
MASTER_KEY_ENV = "AGENT_MASTER_KEY"
JWT_SECRET_ENV = "AGENT_JWT_SECRET"
METRICS_AUTH_ENABLED = true
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadResolvesMetricsAuthSecret(t *testing.T) {
	t.Setenv("AGENT_MASTER_KEY", "k")
	t.Setenv("AGENT_JWT_SECRET", "jwt-secret")
	t.Setenv("AGENT_METRICS_SECRET", "scrape-secret")
	path := writeConfig(t, `
DATABASE_DSN = "agent.db"
MASTER_KEY_ENV = "AGENT_MASTER_KEY"
JWT_SECRET_ENV = "AGENT_JWT_SECRET"
METRICS_AUTH_ENABLED = true
METRICS_AUTH_SECRET_ENV = "AGENT_METRICS_SECRET"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "scrape-secret", cfg.MetricsAuthSecret())
}
