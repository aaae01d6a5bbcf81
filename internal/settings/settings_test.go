package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quells-bot/unified-chat/llm"
)

func writeSettings(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestProviderConfig_MissingFile(t *testing.T) {
	f := Open(filepath.Join(t.TempDir(), "settings.yaml"))

	_, err := f.ProviderConfig(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestProviderConfig_DefaultAndOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, `
default:
  provider: local
  endpoint: http://localhost:1234/v1
principals:
  alice:
    provider: openai
    credential: sk-alice
    model: gpt-4o-mini
`)
	f := Open(path)
	ctx := context.Background()

	cfg, err := f.ProviderConfig(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderConfig{Provider: "openai", Credential: "sk-alice", Model: "gpt-4o-mini"}, cfg)

	cfg, err = f.ProviderConfig(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Provider)
	assert.Equal(t, "http://localhost:1234/v1", cfg.Endpoint)
}

func TestProviderConfig_EmptyProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, "principals:\n  alice:\n    credential: sk-orphan\n")

	_, err := Open(path).ProviderConfig(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestProviderConfig_ExpandsCredentialFromEnv(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "AIza-from-env")
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, "default:\n  provider: gemini\n  credential: ${TEST_GEMINI_KEY}\n")

	cfg, err := Open(path).ProviderConfig(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, "AIza-from-env", cfg.Credential)
}

func TestProviderConfig_LiteralCredentialWithDollar(t *testing.T) {
	t.Setenv("DEF", "should-not-appear")
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")
	f := Open(filepath.Join(t.TempDir(), "settings.yaml"))
	ctx := context.Background()

	tests := map[string]string{
		"pa$$word":           "pa$$word",
		"sk-abc$DEF":         "sk-abc$DEF",
		"${DEF}-suffix":      "${DEF}-suffix",
		"$TEST_OPENAI_KEY":   "sk-from-env",
		"${TEST_OPENAI_KEY}": "sk-from-env",
	}
	for stored, want := range tests {
		require.NoError(t, f.Save("alice", Entry{Provider: "openai", Credential: stored}))
		cfg, err := f.ProviderConfig(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, want, cfg.Credential, "stored %q", stored)
	}
}

func TestProviderConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, "default: [not, a, map")

	_, err := Open(path).ProviderConfig(context.Background(), "alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConfigured)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	f := Open(path)
	ctx := context.Background()

	require.NoError(t, f.Save("", Entry{Provider: "local"}))
	require.NoError(t, f.Save("alice", Entry{Provider: "gemini", Credential: "AIza-alice"}))

	cfg, err := f.ProviderConfig(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "AIza-alice", cfg.Credential)

	cfg, err = f.ProviderConfig(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Provider)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Saving one principal leaves the others intact.
	require.NoError(t, f.Save("bob", Entry{Provider: "openai", Credential: "sk-bob"}))
	doc, err := f.Load()
	require.NoError(t, err)
	assert.Len(t, doc.Principals, 2)
	require.NotNil(t, doc.Default)
	assert.Equal(t, "local", doc.Default.Provider)
}

func TestClear(t *testing.T) {
	f := Open(filepath.Join(t.TempDir(), "settings.yaml"))
	ctx := context.Background()

	require.NoError(t, f.Save("", Entry{Provider: "local"}))
	require.NoError(t, f.Save("alice", Entry{Provider: "gemini", Credential: "AIza-alice"}))

	// Clearing a principal falls back to the default.
	require.NoError(t, f.Clear("alice"))
	cfg, err := f.ProviderConfig(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Provider)

	assert.ErrorIs(t, f.Clear("alice"), ErrNotConfigured)

	require.NoError(t, f.Clear(""))
	_, err = f.ProviderConfig(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, f.Clear(""), ErrNotConfigured)

	doc, err := f.Load()
	require.NoError(t, err)
	assert.Nil(t, doc.Default)
	assert.Empty(t, doc.Principals)
}

func TestWatchReportsEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	f := Open(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	require.NoError(t, f.Watch(ctx, func() { changed <- struct{}{} }))

	require.NoError(t, f.Save("alice", Entry{Provider: "local"}))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	f := Open(filepath.Join(dir, "settings.yaml"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	require.NoError(t, f.Watch(ctx, func() { changed <- struct{}{} }))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))

	select {
	case <-changed:
		t.Fatal("unexpected notification for unrelated file")
	case <-time.After(2 * debounceDelay):
	}
}
