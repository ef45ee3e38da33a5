package ingest

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Source is one physical reader connection.
//
// Read blocks until the reader yields a punch. It returns io.EOF when the
// reader disconnects. A *MalformedPunchError means one record was bad and
// the source can still be read.
type Source interface {
	ID() string
	Read(ctx context.Context) (RawPunch, error)
}

// LineSource reads "card,code,time" lines, as produced by serial bridges and
// text exports. Blank lines and lines starting with '#' are skipped.
type LineSource struct {
	id      string
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewLineSource reads lines from r. If r is an io.Closer, closing the source
// closes r.
func NewLineSource(id string, r io.Reader) *LineSource {
	s := &LineSource{id: id, scanner: bufio.NewScanner(r)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// ID returns the source id.
func (s *LineSource) ID() string { return s.id }

// Read returns the next punch line.
func (s *LineSource) Read(ctx context.Context) (RawPunch, error) {
	for {
		if err := ctx.Err(); err != nil {
			return RawPunch{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return RawPunch{}, err
			}
			return RawPunch{}, io.EOF
		}

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		raw := RawPunch{Source: s.id}
		if len(fields) != 3 {
			return raw, &MalformedPunchError{
				Source: s.id,
				Raw:    line,
				Reason: fmt.Sprintf("want 3 fields, got %d", len(fields)),
			}
		}
		raw.Card = strings.TrimSpace(fields[0])
		raw.Code = strings.TrimSpace(fields[1])
		raw.Time = strings.TrimSpace(fields[2])
		return raw, nil
	}
}

// Close closes the underlying reader when it is closable.
func (s *LineSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// maxFrameSize bounds a single binary frame. Punch frames are tiny; anything
// larger means the stream is out of sync.
const maxFrameSize = 64 << 10

// frame is the msgpack payload of one binary punch frame.
type frame struct {
	Card string `msgpack:"card"`
	Code any    `msgpack:"code"`
	Time any    `msgpack:"time"`
}

// FrameSource reads length-prefixed msgpack frames: 4 bytes big-endian
// payload length followed by a msgpack map {card, code, time}. Code and time
// may be strings or integers.
type FrameSource struct {
	id     string
	r      io.Reader
	closer io.Closer
}

// NewFrameSource reads frames from r. If r is an io.Closer, closing the
// source closes r.
func NewFrameSource(id string, r io.Reader) *FrameSource {
	s := &FrameSource{id: id, r: r}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// ID returns the source id.
func (s *FrameSource) ID() string { return s.id }

// Read returns the next frame's punch.
func (s *FrameSource) Read(ctx context.Context) (RawPunch, error) {
	if err := ctx.Err(); err != nil {
		return RawPunch{}, err
	}

	var lengthBuf [4]byte
	if _, err := io.ReadFull(s.r, lengthBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return RawPunch{}, io.EOF
		}
		return RawPunch{}, err
	}
	n := binary.BigEndian.Uint32(lengthBuf[:])
	if n > maxFrameSize {
		return RawPunch{}, fmt.Errorf("frame of %d bytes exceeds limit %d", n, maxFrameSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		if err == io.ErrUnexpectedEOF {
			return RawPunch{}, io.EOF
		}
		return RawPunch{}, err
	}

	var f frame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return RawPunch{Source: s.id}, &MalformedPunchError{
			Source: s.id,
			Raw:    fmt.Sprintf("%x", payload),
			Reason: fmt.Sprintf("decode frame: %v", err),
		}
	}
	return RawPunch{
		Source: s.id,
		Card:   f.Card,
		Code:   scalarString(f.Code),
		Time:   scalarString(f.Time),
	}, nil
}

// Close closes the underlying reader when it is closable.
func (s *FrameSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func scalarString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// WriteFrame writes one binary punch frame to w. Time is in milliseconds.
func WriteFrame(w io.Writer, card, code string, timeMS int64) error {
	payload, err := msgpack.Marshal(map[string]any{
		"card": card,
		"code": code,
		"time": timeMS,
	})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}
