package request

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/pkg/errors"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
	"github.com/GabrielNunesIT/analytics-transport/internal/model"
	"github.com/GabrielNunesIT/analytics-transport/internal/observability"
)

// Connection timeouts baked into the default transport.
const (
	ConnectTimeout = 4 * time.Second
	ReadTimeout    = 8 * time.Second
)

// maxReplyBytes bounds how much of a reply body is read.
const maxReplyBytes = 1 << 20

// errReadTimeout is the cause recorded when a reply stalls past the read timeout.
var errReadTimeout = errors.New("read timeout")

// HTTPDoer abstracts HTTP client operations for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Ensure http.Client implements HTTPDoer.
var _ HTTPDoer = (*http.Client)(nil)

// Sleeper waits d before the next attempt; it returns early with an error when ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Dispatcher posts batches to one collection endpoint with bounded retry.
// Posts on the same Dispatcher are serialized; use one Dispatcher per worker
// for parallel delivery.
type Dispatcher struct {
	cfg            config.RequestConfig
	builder        *Builder
	client         HTTPDoer
	stub           *Stub
	sleep          Sleeper
	now            func() time.Time
	metrics        *observability.Metrics
	logger         logger.ILogger
	connectTimeout time.Duration
	readTimeout    time.Duration
	mu             sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets a custom HTTP client for testing.
func WithHTTPClient(client HTTPDoer) Option {
	return func(d *Dispatcher) {
		d.client = client
	}
}

// WithStub shares a stub switch with the Dispatcher.
func WithStub(s *Stub) Option {
	return func(d *Dispatcher) {
		d.stub = s
	}
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) {
		d.sleep = s
	}
}

// WithClock replaces the clock used to stamp payloads.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithMetrics records delivery metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// withTimeouts shrinks the connect and read timeouts.
func withTimeouts(connect, read time.Duration) Option {
	return func(d *Dispatcher) {
		d.connectTimeout = connect
		d.readTimeout = read
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *Dispatcher) {
		d.builder.userAgent = ua
	}
}

// NewDispatcher creates a Dispatcher for the given connection options.
// Empty host and path fall back to the defaults, a zero port selects the
// scheme's port and TLS is on unless cfg.Insecure is set. Retries and Backoff
// are taken literally, so a zero value means a single attempt or no wait;
// config.DefaultRequestConfig carries the default retry policy. Negative
// values are treated as zero. Unless WithStub is given, stub mode follows
// cfg.Stub or the STUB environment variable.
func NewDispatcher(cfg config.RequestConfig, log logger.ILogger, opts ...Option) *Dispatcher {
	cfg = normalize(cfg)

	d := &Dispatcher{
		cfg:            cfg,
		sleep:          sleepContext,
		now:            time.Now,
		logger:         log.SubLogger("Dispatcher"),
		connectTimeout: ConnectTimeout,
		readTimeout:    ReadTimeout,
	}
	d.builder = NewBuilder(cfg, func() time.Time { return d.now() })

	for _, opt := range opts {
		opt(d)
	}

	if d.client == nil {
		d.client = newHTTPClient(d.connectTimeout, d.readTimeout)
	}

	if d.stub == nil {
		d.stub = NewStub(cfg.Stub || StubFromEnv().Enabled())
	}

	return d
}

// normalize applies defaults to absent fields.
func normalize(cfg config.RequestConfig) config.RequestConfig {
	if cfg.Host == "" {
		cfg.Host = config.DefaultHost
	}
	if cfg.Path == "" {
		cfg.Path = config.DefaultPath
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	return cfg
}

// newHTTPClient builds the client owning the single connection to the collector.
func newHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			MaxIdleConns:          1,
			MaxIdleConnsPerHost:   1,
			MaxConnsPerHost:       1,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// sleepContext waits d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Endpoint returns the URL batches are posted to.
func (d *Dispatcher) Endpoint() string {
	return d.builder.Endpoint()
}

// Stub returns the switch consulted by Post.
func (d *Dispatcher) Stub() *Stub {
	return d.stub
}

// Post delivers batch on behalf of appID and reports the outcome.
// It never fails: transport errors that survive every retry become a
// Response with status model.StatusConnectionError.
func (d *Dispatcher) Post(ctx context.Context, appID string, batch model.Batch) model.Response {
	start := time.Now()

	if d.stub.Enabled() {
		resp := d.postStub(appID, batch)
		d.recordPost(ctx, resp, true, len(batch), start)
		return resp
	}

	d.mu.Lock()
	resp := d.postWithRetry(ctx, appID, batch)
	d.mu.Unlock()

	d.recordPost(ctx, resp, false, len(batch), start)
	return resp
}

func (d *Dispatcher) postStub(appID string, batch model.Batch) model.Response {
	payload, _ := d.builder.Payload(batch)
	d.logger.Debugf("stubbed request to %s: app id = %s, payload = %s", d.cfg.Path, appID, payload)
	return model.NewResponse(http.StatusOK, "")
}

func (d *Dispatcher) postWithRetry(ctx context.Context, appID string, batch model.Batch) model.Response {
	attempts := d.cfg.Retries + 1

	for attempt := 1; ; attempt++ {
		d.logger.Debugf("sending batch: attempt=%d/%d, records=%d", attempt, attempts, len(batch))

		res := d.attempt(ctx, appID, batch)
		if d.metrics != nil {
			d.metrics.RecordAttempt(ctx, res.outcome.String())
		}

		switch res.outcome {
		case outcomeDelivered:
			d.logger.Debugf("batch delivered: attempt=%d, status=%d", attempt, res.response.Status)
			return res.response

		case outcomeRetryable:
			if attempt < attempts {
				d.logger.Debugf("attempt failed, retrying in %s: attempt=%d, error=%v", d.cfg.Backoff, attempt, res.err)
				if d.metrics != nil {
					d.metrics.RecordRetry(ctx)
				}
				if err := d.sleep(ctx, d.cfg.Backoff); err != nil {
					return d.giveUp(errors.Wrap(err, "backoff interrupted"))
				}
				continue
			}
		}

		return d.giveUp(res.err)
	}
}

// attempt performs one build-send-decode cycle.
// Reading the reply body is bounded by the read timeout, restarted whenever
// data arrives; a stalled body aborts the attempt.
func (d *Dispatcher) attempt(ctx context.Context, appID string, batch model.Batch) attemptResult {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := d.builder.Build(attemptCtx, appID, batch)
	if err != nil {
		return failed(ctx, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return failed(ctx, errors.WithStack(err))
	}
	defer resp.Body.Close()

	body, err := d.readReply(resp.Body, func() { cancel(errReadTimeout) })
	if err != nil {
		if errors.Is(context.Cause(attemptCtx), errReadTimeout) {
			err = errReadTimeout
		}
		return failed(ctx, errors.Wrap(err, "reading response body"))
	}

	if len(body) > maxReplyBytes {
		d.logger.Warningf("reply body too large: status=%d, limit=%d", resp.StatusCode, maxReplyBytes)
		return delivered(model.NewResponse(resp.StatusCode, fmt.Sprintf("response body exceeds %d bytes", maxReplyBytes)))
	}

	reply, err := decodeReply(resp.StatusCode, body)
	if err != nil {
		return failed(ctx, err)
	}

	return delivered(reply)
}

// readReply reads at most maxReplyBytes+1 bytes of body, calling expire when
// no data arrives within the read timeout.
func (d *Dispatcher) readReply(body io.Reader, expire func()) ([]byte, error) {
	timer := time.AfterFunc(d.readTimeout, expire)
	defer timer.Stop()

	return io.ReadAll(&deadlineReader{
		r:       io.LimitReader(body, maxReplyBytes+1),
		timer:   timer,
		timeout: d.readTimeout,
	})
}

// deadlineReader restarts timer after every read that returned data.
type deadlineReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

// giveUp logs err with its stack trace and converts it into the sentinel Response.
func (d *Dispatcher) giveUp(err error) model.Response {
	d.logger.Error(err.Error())

	var st interface{ StackTrace() errors.StackTrace }
	if errors.As(err, &st) {
		for _, f := range st.StackTrace() {
			d.logger.Errorf("\tat %n (%s:%d)", f, f, f)
		}
	}

	return model.ConnectionError(err)
}

func (d *Dispatcher) recordPost(ctx context.Context, resp model.Response, stubbed bool, records int, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordPost(ctx, resp.Status, stubbed, records, time.Since(start).Seconds())
}

// Close releases the idle connection held by the default client.
func (d *Dispatcher) Close() {
	if c, ok := d.client.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
