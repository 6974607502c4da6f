package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8645", cfg.RPCAddress)
	require.Equal(t, "127.0.0.1:9645", cfg.MetricsAddress)
	require.Equal(t, "./vaultix-data", cfg.DataDir)
	require.Equal(t, "vaultix-local", cfg.NetworkName)
	require.Equal(t, filepath.Join(dir, "operator.keystore"), cfg.KeystorePath)

	// The config file and keystore must both exist afterwards.
	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(cfg.KeystorePath)
	require.NoError(t, err)
}

func TestLoadAppliesDefaultsToPartialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
RPCAddress = "0.0.0.0:9000"
NetworkName = "vaultix-test"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, "vaultix-test", cfg.NetworkName)
	require.Equal(t, "127.0.0.1:9645", cfg.MetricsAddress)
	require.Equal(t, "./vaultix-data", cfg.DataDir)
	require.NotEmpty(t, cfg.KeystorePath)
}

func TestLoadParsesGenesisAccounts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
RPCAddress = "127.0.0.1:8645"

[[GenesisAccounts]]
Address = "vtx1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"
Asset = "USDC"
Balance = "1000000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.GenesisAccounts, 1)
	require.Equal(t, "USDC", cfg.GenesisAccounts[0].Asset)
	require.Equal(t, "1000000", cfg.GenesisAccounts[0].Balance)
}

func TestLoadPersistsGeneratedKeystorePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `RPCAddress = "127.0.0.1:8645"` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.KeystorePath)

	// A second load reads the persisted path instead of regenerating.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.KeystorePath, again.KeystorePath)
}
