package request

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/GabrielNunesIT/analytics-transport/internal/model"
)

// outcome classifies a single delivery attempt.
type outcome int

const (
	// outcomeDelivered: an HTTP response was received and decoded. Terminal.
	outcomeDelivered outcome = iota
	// outcomeRetryable: a transport failure; another attempt may succeed.
	outcomeRetryable
	// outcomeTerminal: a failure no further attempt can fix.
	outcomeTerminal
)

func (o outcome) String() string {
	switch o {
	case outcomeDelivered:
		return "delivered"
	case outcomeRetryable:
		return "retryable"
	case outcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// attemptResult is what one attempt produced.
type attemptResult struct {
	outcome  outcome
	response model.Response // set when delivered
	err      error          // set when failed
}

func delivered(resp model.Response) attemptResult {
	return attemptResult{outcome: outcomeDelivered, response: resp}
}

// failed classifies err raised during an attempt made under ctx.
func failed(ctx context.Context, err error) attemptResult {
	return attemptResult{outcome: classify(ctx, err), err: err}
}

// classify decides whether an attempt error is worth retrying.
// Cancellation of the caller's context and missing credentials are final;
// everything else raised while building, sending or decoding is transient.
func classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return outcomeDelivered
	case ctx.Err() != nil:
		return outcomeTerminal
	case errors.Is(err, ErrMissingAppID):
		return outcomeTerminal
	default:
		return outcomeRetryable
	}
}

// remoteReply is the part of the collector's reply the transport reads.
type remoteReply struct {
	Error json.RawMessage `json:"error"`
}

// decodeReply extracts the remote error text from a response body.
// A body that is not a JSON object is an error.
func decodeReply(status int, body []byte) (model.Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return model.Response{}, errors.Errorf("decoding response body (status %d): not a JSON object", status)
	}

	var reply remoteReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return model.Response{}, errors.Wrapf(err, "decoding response body (status %d)", status)
	}
	return model.NewResponse(status, errorText(reply.Error)), nil
}

// errorText renders the error field: strings are unquoted, other values keep
// their JSON text, null and absent become empty.
func errorText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}
