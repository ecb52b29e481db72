// Package reader turns pre-serialized events from files or stdin into batches.
package reader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/analytics-transport/internal/model"
)

// StdinPath is the path naming standard input.
const StdinPath = "-"

// ErrEmptyInput is returned when the input holds no records.
var ErrEmptyInput = errors.New("input contains no records")

// Reader reads records as JSON lines or as a single JSON array.
type Reader struct {
	stdin  io.Reader // Allows injection for testing
	logger logger.ILogger
}

// NewReader creates a reader whose "-" path is os.Stdin.
func NewReader(log logger.ILogger) *Reader {
	return &Reader{
		stdin:  os.Stdin,
		logger: log.SubLogger("Reader"),
	}
}

// NewReaderWithStdin creates a reader with a custom stdin (for testing).
func NewReaderWithStdin(stdin io.Reader, log logger.ILogger) *Reader {
	return &Reader{
		stdin:  stdin,
		logger: log.SubLogger("Reader"),
	}
}

// ReadFile reads every record of path, or of stdin when path is "-".
func (r *Reader) ReadFile(path string) (model.Batch, error) {
	if path == StdinPath || path == "" {
		r.logger.Debug("reading records from stdin")
		return r.Read(r.stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	batch, err := r.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	r.logger.Debugf("read input file: path=%s, records=%d", path, len(batch))
	return batch, nil
}

// Read consumes in and returns its records.
// Input starting with '[' is decoded as one JSON array; anything else is read
// as one JSON value per line, blank lines skipped.
func (r *Reader) Read(in io.Reader) (model.Batch, error) {
	br := bufio.NewReader(in)

	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, err
	}

	var batch model.Batch
	if first == '[' {
		batch, err = readArray(br)
	} else {
		batch, err = readLines(br)
	}
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, ErrEmptyInput
	}
	return batch, nil
}

// peekNonSpace discards leading whitespace and returns the next byte unread.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

func readArray(in io.Reader) (model.Batch, error) {
	var raws []json.RawMessage
	dec := json.NewDecoder(in)
	if err := dec.Decode(&raws); err != nil {
		return nil, fmt.Errorf("decoding JSON array: %w", err)
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON array")
	}

	batch := make(model.Batch, 0, len(raws))
	for i, raw := range raws {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, fmt.Errorf("element %d: null record", i)
		}
		batch = append(batch, model.Record(raw))
	}
	return batch, nil
}

func readLines(in io.Reader) (model.Batch, error) {
	scanner := bufio.NewScanner(in)
	// Increase buffer for long lines
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var batch model.Batch
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("line %d: invalid JSON", lineNo)
		}

		// Make a copy since scanner reuses buffer
		raw := make([]byte, len(line))
		copy(raw, line)
		batch = append(batch, model.Record(raw))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning input: %w", err)
	}
	return batch, nil
}
