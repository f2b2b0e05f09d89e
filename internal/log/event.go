// Package log is a lightweight pub/sub event collector applications can
// subscribe to for tool-call tracing, independent of slog's line-oriented
// output (§2 ambient stack: observability alongside structured logging).
package log

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType classifies one traced occurrence in the client's lifecycle.
type EventType string

const (
	ManualRegistered   EventType = "MANUAL_REGISTERED"
	ManualDeregistered EventType = "MANUAL_DEREGISTERED"
	ToolCallStart      EventType = "TOOL_CALL_START"
	ToolCallEnd        EventType = "TOOL_CALL_END"
)

// Event is one traced occurrence, timestamped at Publish time.
type Event struct {
	Time      time.Time   `json:"ts"`
	EventType EventType   `json:"event_type"`
	Payload   interface{} `json:"payload"`
}

// Collector fans published events out to every subscriber; a full
// subscriber channel drops the event rather than blocking the publisher.
type Collector struct {
	mu   sync.RWMutex
	subs []chan Event
}

// Default is the process-wide collector Publish and Subscribe operate on.
var Default = &Collector{}

// Publish sends an event to Default's subscribers.
func Publish(eventType EventType, payload interface{}) {
	Default.Publish(Event{Time: time.Now(), EventType: eventType, Payload: payload})
}

func (c *Collector) Publish(e Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a receive-only channel of future events, buffered to buf.
func (c *Collector) Subscribe(buf int) <-chan Event {
	ch := make(chan Event, buf)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// FileSink writes every published event (JSON-encoded, one per line) to w,
// optionally filtered to a subset of event types.
func FileSink(w io.Writer, filters ...EventType) {
	want := map[EventType]bool{}
	for _, f := range filters {
		want[f] = true
	}
	ch := Default.Subscribe(100)
	go func() {
		enc := json.NewEncoder(w)
		for ev := range ch {
			if len(want) > 0 && !want[ev.EventType] {
				continue
			}
			_ = enc.Encode(ev)
		}
	}()
}
