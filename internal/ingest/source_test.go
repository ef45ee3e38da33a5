package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineSource(t *testing.T) {
	input := "# header\n999,31,00:00:10\n\n999, 32 ,25000\nbroken line\n"
	src := NewLineSource("serial-1", strings.NewReader(input))
	ctx := context.Background()

	p, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, RawPunch{Source: "serial-1", Card: "999", Code: "31", Time: "00:00:10"}, p)

	p, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "32", p.Code)
	assert.Equal(t, "25000", p.Time)

	_, err = src.Read(ctx)
	var me *MalformedPunchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "broken line", me.Raw)

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineSourceCancelled(t *testing.T) {
	src := NewLineSource("s", strings.NewReader("1,31,10\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFrameSource(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "999", "31", 10000))
	require.NoError(t, WriteFrame(&buf, "999", "finish", 50000))

	src := NewFrameSource("usb-1", &buf)
	ctx := context.Background()

	p, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, RawPunch{Source: "usb-1", Card: "999", Code: "31", Time: "10000"}, p)

	p, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "finish", p.Code)

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameSourceTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "999", "31", 10000))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])

	_, err := NewFrameSource("s", truncated).Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameSourceBadPayload(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0xc1} // 0xc1 is never valid msgpack
	src := NewFrameSource("s", bytes.NewReader(data))

	_, err := src.Read(context.Background())
	var me *MalformedPunchError
	assert.True(t, errors.As(err, &me))
}

func TestFrameSourceOversized(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff}
	_, err := NewFrameSource("s", bytes.NewReader(data)).Read(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
