package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
	"github.com/GabrielNunesIT/analytics-transport/internal/request"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "analytics-transport dev\n", out)
}

func TestValidateCmd(t *testing.T) {
	t.Setenv(request.StubEnvVar, "")
	cfgPath := writeFile(t, "config.yaml", `
request:
  host: collector.internal
  port: 8080
  insecure: true
  retries: 2
  backoff: 5s
sender:
  workers: 3
`)

	out, err := runCLI(t, "validate", "--config", cfgPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Configuration valid:")
	assert.Contains(t, out, "Endpoint:   http://collector.internal:8080/v1/import")
	assert.Contains(t, out, "Retries:    2")
	assert.Contains(t, out, "Backoff:    5s")
	assert.Contains(t, out, "Stub:       false")
	assert.Contains(t, out, "Workers:    3")
}

func TestValidateCmd_FlagOverrides(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "sender:\n  workers: 3\n")

	out, err := runCLI(t, "validate", "--config", cfgPath, "--stub")
	require.NoError(t, err)
	assert.Contains(t, out, "Stub:       true")
}

func TestValidateCmd_Invalid(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "request:\n  retries: -1\n")

	_, err := runCLI(t, "validate", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request.retries")
}

func TestSendCmd_Stub(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "loglevel: error\n")
	input := writeFile(t, "events.jsonl", `{"event":"a"}`+"\n"+`{"event":"b"}`+"\n"+`{"event":"c"}`+"\n")

	out, err := runCLI(t, "send", "--config", cfgPath, "--stub", "--input", input, "--batch-size", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "chunk 0: records=2 status=200\n")
	assert.Contains(t, out, "chunk 1: records=1 status=200\n")
	assert.Contains(t, out, "sent 2 chunks: ok=2, failed=0")
}

func TestSendCmd_MissingAppID(t *testing.T) {
	t.Setenv(request.StubEnvVar, "")
	cfgPath := writeFile(t, "config.yaml", "loglevel: error\n")
	input := writeFile(t, "events.jsonl", `{"event":"a"}`+"\n")

	_, err := runCLI(t, "send", "--config", cfgPath, "--input", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app id is required")
}

func TestSendCmd_EmptyInput(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "loglevel: error\n")
	input := writeFile(t, "events.jsonl", "\n\n")

	_, err := runCLI(t, "send", "--config", cfgPath, "--stub", "--input", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no records")
}

func TestSendCmd_HTTPServer(t *testing.T) {
	t.Setenv(request.StubEnvVar, "")

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		user, _, _ := r.BasicAuth()
		var body struct {
			Batch []map[string]any `json:"batch"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		if user != "write-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		if len(body.Batch) == 1 && body.Batch[0]["event"] == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	cfgPath := writeFile(t, "config.yaml", fmt.Sprintf(`
loglevel: error
request:
  host: %s
  port: %s
  insecure: true
  retries: 0
`, u.Hostname(), u.Port()))
	input := writeFile(t, "events.json", `[{"event":"a"},{"event":"bad"},{"event":"c"}]`)

	out, err := runCLI(t, "send", "--config", cfgPath, "--app-id", "write-key", "--input", input, "--batch-size", "1", "--workers", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 chunks failed")

	assert.Equal(t, int32(3), requests.Load())
	assert.Contains(t, out, "chunk 0: records=1 status=200\n")
	assert.Contains(t, out, `chunk 1: records=1 status=400 error="invalid"`)
	assert.Contains(t, out, "chunk 2: records=1 status=200\n")
}

func TestApplyCLIOverrides(t *testing.T) {
	root := NewRootCmd()
	cmd, _, err := root.Find([]string{"send"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--app-id", "abc", "--batch-size", "5", "--workers", "2", "--log-level", "debug"}))

	cfg := &config.Config{LogLevel: "info", Sender: config.SenderConfig{Workers: 1, BatchSize: 100}}
	applyCLIOverrides(cmd, cfg)

	assert.Equal(t, "abc", cfg.AppID)
	assert.Equal(t, 5, cfg.Sender.BatchSize)
	assert.Equal(t, 2, cfg.Sender.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Request.Stub)
}

func TestSetupLogging_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transport.log")

	log, closer := SetupLogging("info", config.LogFileConfig{Path: path, MaxSizeMB: 1})
	log.Debug("hidden")
	log.Error("delivery failed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "delivery failed")
	assert.NotContains(t, string(data), "hidden")
}
