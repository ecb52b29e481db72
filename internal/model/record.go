// Package model defines the core data structures handed between the transport and its callers.
package model

import (
	"encoding/json"
	"time"
)

// SentAtLayout is the ISO-8601 layout used for the payload timestamp.
// Timestamps are always rendered in UTC with microsecond precision.
const SentAtLayout = "2006-01-02T15:04:05.000000Z07:00"

// Record is a single pre-serialized event.
// The transport never looks inside it; it is embedded verbatim in the payload.
type Record = json.RawMessage

// Batch is an ordered set of records sent together in one request.
type Batch []Record

// NewBatch creates a Batch from raw JSON documents, copying each one
// so the caller may reuse its buffers.
func NewBatch(raws ...[]byte) Batch {
	b := make(Batch, 0, len(raws))
	for _, raw := range raws {
		b = append(b, cloneRecord(raw))
	}
	return b
}

// Clone creates a deep copy of the Batch.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	clone := make(Batch, len(b))
	for i, r := range b {
		clone[i] = cloneRecord(r)
	}
	return clone
}

// Chunk splits the batch into consecutive sub-batches of at most size records.
// A non-positive size returns the whole batch as a single chunk.
func (b Batch) Chunk(size int) []Batch {
	if len(b) == 0 {
		return nil
	}
	if size <= 0 || size >= len(b) {
		return []Batch{b}
	}

	chunks := make([]Batch, 0, (len(b)+size-1)/size)
	for i := 0; i < len(b); i += size {
		end := i + size
		if end > len(b) {
			end = len(b)
		}
		chunks = append(chunks, b[i:end])
	}
	return chunks
}

func cloneRecord(r []byte) Record {
	if r == nil {
		return nil
	}
	c := make([]byte, len(r))
	copy(c, r)
	return c
}

// Payload is the wire envelope posted to the collection endpoint.
type Payload struct {
	// SentAt is the wall-clock time of the attempt carrying this payload.
	SentAt string `json:"sentAt"`

	// Batch holds the records exactly as the caller supplied them.
	Batch Batch `json:"batch"`
}

// NewPayload wraps a batch with a timestamp taken from now.
func NewPayload(now time.Time, batch Batch) Payload {
	if batch == nil {
		batch = Batch{}
	}
	return Payload{
		SentAt: FormatSentAt(now),
		Batch:  batch,
	}
}

// FormatSentAt renders t in UTC using SentAtLayout.
func FormatSentAt(t time.Time) string {
	return t.UTC().Format(SentAtLayout)
}
