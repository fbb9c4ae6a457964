package queue

import (
	"time"

	"github.com/bytedance/sonic"
)

// Stream field names. Stable across producers and consumers.
const (
	fieldPayload    = "payload"
	fieldEnqueuedAt = "enqueuedAt"
)

// Entry is one unit of work delivered to a consumer group. The entry id is
// assigned by the stream on append and is monotonically increasing within a
// topic. Attempt counts deliveries to the consumer's group, starting at 1;
// handlers use it for idempotency and backoff decisions.
type Entry struct {
	ID         string    `json:"entryId"`
	Topic      string    `json:"topic"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Payload    []byte    `json:"payload"`
	Attempt    int64     `json:"attempt"`
}

// DecodePayload unmarshals the entry payload into out.
func (e *Entry) DecodePayload(out any) error {
	return sonic.Unmarshal(e.Payload, out)
}

func entryFromFields(id, topic string, fields map[string]string, attempt int64) Entry {
	entry := Entry{
		ID:      id,
		Topic:   topic,
		Payload: []byte(fields[fieldPayload]),
		Attempt: attempt,
	}

	if raw, ok := fields[fieldEnqueuedAt]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			entry.EnqueuedAt = ts
		}
	}

	return entry
}
