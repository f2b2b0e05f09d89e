package log

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorPublishDeliversToSubscriber(t *testing.T) {
	c := &Collector{}
	ch := c.Subscribe(1)

	c.Publish(Event{Time: time.Now(), EventType: ToolCallStart, Payload: "call-1"})

	select {
	case ev := <-ch:
		assert.Equal(t, ToolCallStart, ev.EventType)
		assert.Equal(t, "call-1", ev.Payload)
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestCollectorPublishDropsWhenSubscriberFull(t *testing.T) {
	c := &Collector{}
	ch := c.Subscribe(1)

	c.Publish(Event{EventType: ToolCallStart})
	// Buffer is now full; this publish must not block.
	c.Publish(Event{EventType: ToolCallEnd})

	ev := <-ch
	assert.Equal(t, ToolCallStart, ev.EventType)
	select {
	case <-ch:
		t.Fatal("second event should have been dropped, not queued")
	default:
	}
}

func TestCollectorFansOutToMultipleSubscribers(t *testing.T) {
	c := &Collector{}
	ch1 := c.Subscribe(1)
	ch2 := c.Subscribe(1)

	c.Publish(Event{EventType: ManualRegistered, Payload: "m1"})

	ev1 := <-ch1
	ev2 := <-ch2
	assert.Equal(t, "m1", ev1.Payload)
	assert.Equal(t, "m1", ev2.Payload)
}

func TestPackageLevelPublishUsesDefaultCollector(t *testing.T) {
	ch := Default.Subscribe(1)
	Publish(ManualDeregistered, "m2")

	ev := <-ch
	assert.Equal(t, ManualDeregistered, ev.EventType)
	assert.Equal(t, "m2", ev.Payload)
	assert.False(t, ev.Time.IsZero())
}

func TestFileSinkWritesFilteredEventsAsJSONLines(t *testing.T) {
	c := &Collector{}
	origDefault := Default
	Default = c
	defer func() { Default = origDefault }()

	var buf bytes.Buffer
	FileSink(&buf, ToolCallEnd)

	c.Publish(Event{EventType: ToolCallStart, Payload: "ignored"})
	c.Publish(Event{EventType: ToolCallEnd, Payload: "kept"})

	require.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte("kept"))
	}, time.Second, 10*time.Millisecond)

	assert.NotContains(t, buf.String(), "ignored")

	var decoded map[string]interface{}
	line := bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0]
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.Equal(t, "TOOL_CALL_END", decoded["event_type"])
}
