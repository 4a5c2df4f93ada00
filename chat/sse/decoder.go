// Package sse splits a Server-Sent Events byte stream into frames.
//
// Design decisions:
//   - Pull-based: callers loop on Next until io.EOF. There is no
//     goroutine and no channel; the read happens on the caller's stack,
//     so cancelling the underlying request is the only way to stop a
//     blocked Next.
//   - Records are separated by a blank line. A record split across two
//     network reads is held in the buffer until its terminator arrives.
//   - A trailing record with no terminator when the stream closes is
//     dropped, not flushed.
package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// Frame is one decoded SSE record.
type Frame struct {
	Event string // from "event:" lines, empty when absent
	Data  string // "data:" lines joined with "\n"
}

const readSize = 4096

var separator = []byte("\n\n")

// Decoder reads frames from an io.Reader.
type Decoder struct {
	r       io.Reader
	buf     []byte
	pending []Frame
	chunk   []byte
	err     error
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, readSize)}
}

// Next returns the next frame carrying at least one data line.
// It returns io.EOF once the reader is exhausted and every complete
// record has been handed out. Any other read error is returned as is
// and is sticky.
func (d *Decoder) Next() (Frame, error) {
	for {
		if len(d.pending) > 0 {
			f := d.pending[0]
			d.pending = d.pending[1:]
			return f, nil
		}
		if d.err != nil {
			return Frame{}, d.err
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.feed(d.chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.EOF
			}
			// Whatever is left in buf never got its terminator.
			d.buf = nil
			d.err = err
		}
	}
}

// Buffered reports how many bytes of an unterminated record are held.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) feed(p []byte) {
	d.buf = append(d.buf, p...)
	if bytes.IndexByte(d.buf, '\r') >= 0 {
		// A lone trailing \r may be the first half of a \r\n split
		// across reads; keep it until the next chunk.
		tail := len(d.buf)
		if d.buf[tail-1] == '\r' {
			tail--
		}
		head := bytes.ReplaceAll(d.buf[:tail], []byte("\r\n"), []byte("\n"))
		d.buf = append(head, d.buf[tail:]...)
	}

	for {
		idx := bytes.Index(d.buf, separator)
		if idx < 0 {
			return
		}
		record := string(d.buf[:idx])
		d.buf = d.buf[idx+len(separator):]
		if f, ok := parseRecord(record); ok {
			d.pending = append(d.pending, f)
		}
	}
}

// parseRecord extracts the event name and data lines of one record.
// Comment lines (":") and unknown fields are ignored.
func parseRecord(record string) (Frame, bool) {
	var (
		f       Frame
		data    []string
		hasData bool
	)
	for _, line := range strings.Split(record, "\n") {
		switch {
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "data:"):
			data = append(data, trimValue(line[len("data:"):]))
			hasData = true
		case strings.HasPrefix(line, "event:"):
			f.Event = trimValue(line[len("event:"):])
		}
	}
	if !hasData {
		return Frame{}, false
	}
	f.Data = strings.Join(data, "\n")
	return f, true
}

// trimValue strips the single optional space after the field colon.
func trimValue(v string) string {
	if strings.HasPrefix(v, " ") {
		return v[1:]
	}
	return v
}
