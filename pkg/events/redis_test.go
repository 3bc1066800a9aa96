package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	channel string
	payload []byte
	err     error
	closed  bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisPublisher_PublishTransition(t *testing.T) {
	fake := &fakeRedis{}
	p := newRedisPublisher(fake, "", nil)

	event := TransitionEvent{
		BaseEvent:    NewBaseEvent("lead.status_changed"),
		TransitionID: "t-1",
		LeadID:       "p1",
		FromStatus:   "NEW",
		ToStatus:     "LEAD",
		StartedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ConfirmedAt:  time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
	}
	require.NoError(t, p.PublishTransition(context.Background(), event))

	assert.Equal(t, ChannelLeadStatusChanged, fake.channel)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(fake.payload, &decoded))
	assert.Equal(t, "p1", decoded["lead_id"])
	assert.Equal(t, "LEAD", decoded["to_status"])
	assert.Equal(t, "lead.status_changed", decoded["event_type"])
	assert.Equal(t, "redora-cli", decoded["source"])
}

func TestRedisPublisher_PublishError(t *testing.T) {
	fake := &fakeRedis{err: errors.New("redis down")}
	p := newRedisPublisher(fake, "custom.channel", nil)

	err := p.PublishTransition(context.Background(), TransitionEvent{LeadID: "p1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom.channel")
	assert.Equal(t, "custom.channel", p.Channel())
}

func TestRedisPublisher_Close(t *testing.T) {
	fake := &fakeRedis{}
	require.NoError(t, newRedisPublisher(fake, "", nil).Close())
	assert.True(t, fake.closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishTransition(context.Background(), TransitionEvent{}))
	assert.NoError(t, p.Close())
}
