package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/eventflit/eventflit-go"
)

func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	defineFlags(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestLoadConfig_Flags(t *testing.T) {
	cmd := newTestCommand(t, "--key", "app-key", "--cluster", "eu", "-C", "orders", "-C", "private-chat",
		"--auth.endpoint", "https://example.com/auth")

	cfg, err := loadConfig(cmd, "")
	require.NoError(t, err)
	require.Equal(t, "app-key", cfg.Key)
	require.Equal(t, "eu", cfg.Cluster)
	require.Equal(t, []string{"orders", "private-chat"}, cfg.Channels)
	require.Equal(t, "info", cfg.LogLevel)

	cc := cfg.clientConfig()
	require.Equal(t, eventflit.AuthEndpoint{URL: "https://example.com/auth"}, cc.Auth)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("EVENTFLIT_KEY", "env-key")
	t.Setenv("EVENTFLIT_AUTH_SECRET", "s3cret")

	cfg, err := loadConfig(newTestCommand(t), "")
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.Key)
	require.Equal(t, eventflit.InlineSecret{Secret: "s3cret"}, cfg.clientConfig().Auth)
}

func TestLoadConfig_FlagBeatsEnv(t *testing.T) {
	t.Setenv("EVENTFLIT_KEY", "env-key")

	cfg, err := loadConfig(newTestCommand(t, "--key", "flag-key"), "")
	require.NoError(t, err)
	require.Equal(t, "flag-key", cfg.Key)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listen.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"key":"file-key","insecure":true,"port":6001}`), 0o600))

	cfg, err := loadConfig(newTestCommand(t), path)
	require.NoError(t, err)
	require.Equal(t, "file-key", cfg.Key)
	require.True(t, cfg.Insecure)
	require.Equal(t, 6001, cfg.Port)
}

func TestLoadConfig_MissingFileIgnored(t *testing.T) {
	_, err := loadConfig(newTestCommand(t, "--key", "k"), filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
}

func TestLoadConfig_ConflictingAuth(t *testing.T) {
	_, err := loadConfig(newTestCommand(t, "--auth.endpoint", "https://x", "--auth.secret", "s"), "")
	require.Error(t, err)
}
