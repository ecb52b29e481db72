package request

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
	"github.com/GabrielNunesIT/analytics-transport/internal/model"
)

// DefaultUserAgent is sent unless the caller configures another one.
const DefaultUserAgent = "analytics-transport"

// ErrMissingAppID is returned when a request is built without an application id.
var ErrMissingAppID = errors.New("app id is required")

// Builder assembles outbound requests. It performs no I/O.
type Builder struct {
	endpoint  string
	headers   map[string]string
	userAgent string
	now       func() time.Time
}

// NewBuilder creates a Builder for the given connection options.
// now is consulted once per Build so every attempt carries a fresh timestamp.
func NewBuilder(cfg config.RequestConfig, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &Builder{
		endpoint:  cfg.Endpoint(),
		headers:   headers,
		userAgent: DefaultUserAgent,
		now:       now,
	}
}

// Endpoint returns the URL requests are sent to.
func (b *Builder) Endpoint() string {
	return b.endpoint
}

// Payload encodes the batch in its wire envelope, stamped with the current time.
func (b *Builder) Payload(batch model.Batch) ([]byte, error) {
	data, err := json.Marshal(model.NewPayload(b.now(), batch))
	if err != nil {
		return nil, errors.Wrap(err, "encoding payload")
	}
	return data, nil
}

// Build creates the POST request carrying batch on behalf of appID.
func (b *Builder) Build(ctx context.Context, appID string, batch model.Batch) (*http.Request, error) {
	if appID == "" {
		return nil, errors.WithStack(ErrMissingAppID)
	}

	body, err := b.Payload(batch)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}

	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(appID, "")

	return req, nil
}
