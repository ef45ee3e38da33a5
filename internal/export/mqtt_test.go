package export

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/feed"
	"github.com/roach88/sportorg/internal/ranking"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	calls        []publishCall
	err          error
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.calls = append(f.calls, publishCall{topic, qos, retained, payload.([]byte)})
	return doneToken{f.err}
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func TestMQTTPublishesRetainedRanking(t *testing.T) {
	client := &fakeMQTT{}
	m := newMQTT(client, "club/", zerolog.Nop())

	snap := feed.Snapshot{
		ClassID: "W21",
		Version: 7,
		Entries: []ranking.Entry{{CompetitorID: "C1", ClassID: "W21", Place: 1}},
	}
	require.NoError(t, m.Publish(context.Background(), snap))

	require.Len(t, client.calls, 1)
	call := client.calls[0]
	assert.Equal(t, "club/classes/W21/results", call.topic)
	assert.Equal(t, byte(1), call.qos)
	assert.True(t, call.retained)

	var got feed.Snapshot
	require.NoError(t, json.Unmarshal(call.payload, &got))
	assert.Equal(t, uint64(7), got.Version)
	assert.Equal(t, "C1", got.Entries[0].CompetitorID)

	client.err = errors.New("not connected")
	assert.ErrorContains(t, m.Publish(context.Background(), snap), "not connected")

	require.NoError(t, m.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTDefaultPrefix(t *testing.T) {
	m := newMQTT(&fakeMQTT{}, "", zerolog.Nop())
	assert.Equal(t, "sportorg/classes/M21/results", m.Topic("M21"))
}
