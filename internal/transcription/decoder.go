package transcription

import (
	"bytes"
	"encoding/json"
	"io"
)

// Decoder incrementally parses a byte stream containing one JSON object
// per newline. The transport may split or coalesce lines arbitrarily, so
// the decoder keeps a carry-over buffer of not-yet-terminated bytes between
// reads. Lines that fail to parse as a JSON object are skipped rather than
// aborting the stream. On end of stream a parseable non-empty leftover is
// emitted as a final event; an unparseable leftover is discarded.
//
// A Decoder yields a finite, non-restartable event sequence for exactly one
// response body.
type Decoder struct {
	r       io.Reader
	scratch []byte
	carry   []byte
	pending []StreamEvent
	eof     bool
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		scratch: make([]byte, 4096),
	}
}

// Next returns the next decoded event, or io.EOF once the stream is
// exhausted. Any other error is a transport-level read failure.
func (d *Decoder) Next() (*StreamEvent, error) {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return &ev, nil
		}

		if d.eof {
			return nil, io.EOF
		}

		n, err := d.r.Read(d.scratch)
		if n > 0 {
			d.carry = append(d.carry, d.scratch[:n]...)
			d.splitCompleteLines()
		}
		if err == io.EOF {
			d.eof = true
			// A parseable leftover without a trailing newline still counts
			// as a final event
			if line := bytes.TrimSpace(d.carry); len(line) > 0 {
				if ev, ok := decodeLine(line); ok {
					d.pending = append(d.pending, ev)
				}
			}
			d.carry = nil
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

// splitCompleteLines decodes every newline-terminated line currently in the
// carry-over buffer and retains the trailing partial line for the next read
func (d *Decoder) splitCompleteLines() {
	for {
		idx := bytes.IndexByte(d.carry, '\n')
		if idx < 0 {
			return
		}

		line := bytes.TrimSpace(d.carry[:idx])
		d.carry = d.carry[idx+1:]

		if len(line) == 0 {
			continue
		}
		if ev, ok := decodeLine(line); ok {
			d.pending = append(d.pending, ev)
		}
	}
}

// decodeLine parses a single line as a StreamEvent. Malformed lines and
// JSON values that are not objects with a status are rejected.
func decodeLine(line []byte) (StreamEvent, bool) {
	var ev StreamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return StreamEvent{}, false
	}
	if ev.Status == "" {
		return StreamEvent{}, false
	}
	return ev, true
}
