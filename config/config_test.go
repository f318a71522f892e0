package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/tokensale/types"
)

const ownerHex = "0x00000000000000000000000000000000000000F0"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, "owner: \""+ownerHex+"\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, types.ContentSingle, cfg.ContentVariant)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "static", cfg.Oracle.Mode)
	assert.Equal(t, "memory", cfg.Ledger.Mode)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
owner: "`+ownerHex+`"
referenceToken: WEGLD-bd4d79
contentVariant: multi
listenAddr: 127.0.0.1:9000
stateFile: /var/lib/tokensale/state.json
proxies:
  EGLD: "0x00000000000000000000000000000000000000c1"
oracle:
  mode: http
  baseUrl: https://oracle.example.com
  timeout: 3s
  rateLimit: 5
  burst: 2
ledger:
  mode: memory
  initialFunds:
    GAME-abcdef: "100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, types.TokenIdentifier("WEGLD-bd4d79"), cfg.ReferenceToken)
	assert.Equal(t, types.ContentMulti, cfg.ContentVariant)
	assert.Equal(t, "https://oracle.example.com", cfg.Oracle.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, 2, cfg.Oracle.Burst)
	assert.Equal(t, "100", cfg.Ledger.InitialFunds["GAME-abcdef"])
	assert.Len(t, cfg.Proxies, 1)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "owner: \""+ownerHex+"\"\nlistenAddr: :1\n")
	t.Setenv("TOKENSALE_LISTEN_ADDR", ":9999")
	t.Setenv("TOKENSALE_LOG_LEVEL", "DEBUG")
	t.Setenv("TOKENSALE_ENABLE_METRICS", "off")
	t.Setenv("TOKENSALE_ORACLE_MODE", "http")
	t.Setenv("TOKENSALE_ORACLE_URL", "http://localhost:7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, "http", cfg.Oracle.Mode)
	assert.Equal(t, "http://localhost:7000", cfg.Oracle.BaseURL)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing owner":      "contentVariant: single\n",
		"bad variant":        "owner: \"" + ownerHex + "\"\ncontentVariant: triple\n",
		"multi without ref":  "owner: \"" + ownerHex + "\"\ncontentVariant: multi\n",
		"http without url":   "owner: \"" + ownerHex + "\"\noracle:\n  mode: http\n",
		"evm without rpc":    "owner: \"" + ownerHex + "\"\nledger:\n  mode: evm\n",
		"bad proxy address":  "owner: \"" + ownerHex + "\"\nproxies:\n  EGLD: nope\n",
		"bad reference":      "owner: \"" + ownerHex + "\"\nreferenceToken: usdc\n",
		"malformed document": "owner: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.True(t, types.HasCode(err, types.ErrConfigError), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, types.HasCode(err, types.ErrConfigError))
}

func TestDescribe_MasksSignerKey(t *testing.T) {
	cfg := Default()
	cfg.Ledger.SignerKeyHex = "deadbeef"
	out := Describe(&cfg)
	assert.NotContains(t, out, "deadbeef")
}
