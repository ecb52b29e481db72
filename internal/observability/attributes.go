// Package observability provides the transport's OpenTelemetry metrics.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrStatus  = "status"
	attrOutcome = "outcome"
	attrStubbed = "stubbed"
)

// statusAttr groups status codes to reduce cardinality.
// 200-299 -> 2xx, 400-499 -> 4xx, the -1 sentinel -> connection_error
func statusAttr(code int) attribute.KeyValue {
	if code < 100 {
		return attribute.String(attrStatus, "connection_error")
	}
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func stubbedAttr(stubbed bool) attribute.KeyValue {
	return attribute.Bool(attrStubbed, stubbed)
}
