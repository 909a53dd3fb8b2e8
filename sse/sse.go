// Package sse reads server-sent events from an HTTP response body.
//
// It implements the subset of the event stream format that generative-AI
// APIs emit: "event", "data" and "id" fields, comment lines, CRLF or LF
// line endings. The "retry" field is ignored. Events without data are not
// dispatched.
package sse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// ErrEventTooLarge is returned by Next when an event's joined data exceeds
// the size limit. It matches [bufio.ErrTooLong].
var ErrEventTooLarge = fmt.Errorf("sse: event too large: %w", bufio.ErrTooLong)

const (
	defaultMaxEventSize = 1 << 20
	initialBufferSize   = 64 * 1024
)

// Event is one dispatched server-sent event.
type Event struct {
	Type string // value of the last "event" field; empty means "message"
	ID   string
	Data []byte // "data" lines joined by '\n'
}

// Option configures a [Reader].
type Option func(*Reader)

// WithMaxEventSize limits both a single line and the joined data of one
// event to n bytes. A longer line makes Next fail with [bufio.ErrTooLong],
// a larger event with [ErrEventTooLarge].
func WithMaxEventSize(n int) Option {
	return func(r *Reader) { r.maxSize = n }
}

// Reader parses events from an [io.Reader] one at a time.
type Reader struct {
	scanner *bufio.Scanner
	maxSize int
	lastID  string
	closed  bool
}

// NewReader returns a Reader over r. The Reader never closes r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{maxSize: defaultMaxEventSize}
	for _, o := range opts {
		o(rd)
	}
	rd.scanner = bufio.NewScanner(r)
	rd.scanner.Buffer(make([]byte, 0, min(initialBufferSize, rd.maxSize)), rd.maxSize)
	rd.scanner.Split(scanLines)
	return rd
}

// Next reads lines until a complete event is assembled.
// It returns io.EOF when the underlying reader is exhausted.
func (r *Reader) Next() (Event, error) {
	if r.closed {
		return Event{}, io.EOF
	}

	var (
		eventType string
		data      bytes.Buffer
		hasData   bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Bytes()

		if len(line) == 0 {
			// Blank line dispatches the event, if any data accumulated.
			if hasData {
				return Event{Type: eventType, ID: r.lastID, Data: data.Bytes()}, nil
			}
			eventType = ""
			continue
		}

		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch string(field) {
		case "event":
			eventType = string(value)
		case "data":
			size := data.Len() + len(value)
			if hasData {
				size++
			}
			if size > r.maxSize {
				return Event{}, ErrEventTooLarge
			}
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		case "id":
			// IDs containing NUL are ignored per the event stream format.
			if bytes.IndexByte(value, 0) < 0 {
				r.lastID = string(value)
			}
		}
		// "retry" and unknown fields are ignored.
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}

	// Body ended without a trailing blank line.
	if hasData {
		return Event{Type: eventType, ID: r.lastID, Data: data.Bytes()}, nil
	}
	return Event{}, io.EOF
}

// Close drops the parser's state. Later calls to Next return io.EOF.
// The underlying reader is left open.
func (r *Reader) Close() error {
	r.closed = true
	r.scanner = nil
	return nil
}

// splitField splits "field: value" into its parts. A single space after
// the colon is part of the delimiter. A line without a colon is a field
// with an empty value.
func splitField(line []byte) (field, value []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return line, nil
	}
	field, value = line[:i], line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}

// scanLines is bufio.ScanLines that also accepts a lone '\r' terminator.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need one more byte to tell CR from CRLF.
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
