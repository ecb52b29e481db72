package request

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
	"github.com/GabrielNunesIT/analytics-transport/internal/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBuilder_Build(t *testing.T) {
	cfg := config.RequestConfig{
		Host:    "collector.example.com",
		Port:    8443,
		Path:    "/v1/import",
		Headers: map[string]string{"X-Tenant": "acme"},
	}
	now := time.Date(2026, 1, 18, 12, 0, 0, 500000000, time.UTC)
	b := NewBuilder(cfg, fixedClock(now))

	req, err := b.Build(context.Background(), "abc", model.NewBatch([]byte(`{"event":"x"}`)))
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https://collector.example.com:8443/v1/import", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "acme", req.Header.Get("X-Tenant"))
	assert.Equal(t, DefaultUserAgent, req.Header.Get("User-Agent"))

	user, pass, ok := req.BasicAuth()
	require.True(t, ok, "expected basic auth")
	assert.Equal(t, "abc", user)
	assert.Equal(t, "", pass)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sentAt":"2026-01-18T12:00:00.500000Z","batch":[{"event":"x"}]}`, string(body))
}

func TestBuilder_JSONHeadersCannotBeOverridden(t *testing.T) {
	cfg := config.RequestConfig{
		Host: "localhost",
		Path: "/v1/import",
		Headers: map[string]string{
			"Content-Type": "text/plain",
			"Accept":       "*/*",
			"User-Agent":   "custom/1.0",
		},
	}
	b := NewBuilder(cfg, nil)

	req, err := b.Build(context.Background(), "abc", nil)
	require.NoError(t, err)

	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "custom/1.0", req.Header.Get("User-Agent"))
}

func TestBuilder_FreshTimestampPerBuild(t *testing.T) {
	current := time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		current = current.Add(1500 * time.Millisecond)
		return current
	}
	b := NewBuilder(config.RequestConfig{Host: "localhost", Path: "/"}, clock)

	sentAt := func() string {
		req, err := b.Build(context.Background(), "abc", nil)
		require.NoError(t, err)
		var p model.Payload
		require.NoError(t, json.NewDecoder(req.Body).Decode(&p))
		return p.SentAt
	}

	first, second := sentAt(), sentAt()
	assert.Equal(t, "2026-01-18T12:00:01.500000Z", first)
	assert.Equal(t, "2026-01-18T12:00:03.000000Z", second)
}

func TestBuilder_MissingAppID(t *testing.T) {
	b := NewBuilder(config.DefaultRequestConfig(), nil)

	_, err := b.Build(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAppID))
}

func TestBuilder_InvalidRecord(t *testing.T) {
	b := NewBuilder(config.DefaultRequestConfig(), nil)

	_, err := b.Build(context.Background(), "abc", model.Batch{model.Record(`{not json`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding payload")
}

func TestBuilder_HeadersAreCopied(t *testing.T) {
	headers := map[string]string{"X-Tenant": "acme"}
	b := NewBuilder(config.RequestConfig{Host: "localhost", Path: "/", Headers: headers}, nil)

	headers["X-Tenant"] = "changed"

	req, err := b.Build(context.Background(), "abc", nil)
	require.NoError(t, err)
	assert.Equal(t, "acme", req.Header.Get("X-Tenant"))
}
