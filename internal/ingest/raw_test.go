package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/model"
)

func TestParse(t *testing.T) {
	p, err := Parse(RawPunch{Source: "r1", Card: " 999 ", Code: "31", Time: "00:00:10"})
	require.NoError(t, err)

	assert.Equal(t, "999", p.CardID)
	assert.Equal(t, "31", p.Code)
	assert.Equal(t, 10*time.Second, p.Time)
	assert.Equal(t, "r1", p.Source)
	assert.Equal(t, model.MustPunchID("999", "31", 10*time.Second), p.ID)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  RawPunch
	}{
		{"no card", RawPunch{Code: "31", Time: "10"}},
		{"no code", RawPunch{Card: "1", Time: "10"}},
		{"no time", RawPunch{Card: "1", Code: "31"}},
		{"bad time", RawPunch{Card: "1", Code: "31", Time: "ten"}},
		{"milliseconds overflow", RawPunch{Card: "1", Code: "31", Time: "9223372036854775"}},
		{"hours overflow", RawPunch{Card: "1", Code: "31", Time: "3000000000:00:00"}},
		{"beyond a week", RawPunch{Card: "1", Code: "31", Time: "169:00:00"}},
		{"comma in card", RawPunch{Card: "1,2", Code: "31", Time: "10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			var me *MalformedPunchError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, ErrCodeMalformedPunch, me.Code())
			assert.Contains(t, err.Error(), ErrCodeMalformedPunch)
		})
	}
}
