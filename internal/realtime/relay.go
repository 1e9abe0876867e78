package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Abhranil-01/dsport-backend-api/internal/platform/jobs"
)

// Notification is the relay payload carried between the worker and API processes.
type Notification struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Publisher delivers an event to a room.
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// Relay forwards notifications from a process without websocket clients to the API process that
// holds the hub. Relayed events keep the at-most-once contract: one attempt, no retry.
type Relay struct {
	queue jobs.Queue
}

// NewRelay publishes notifications onto queue.
func NewRelay(queue jobs.Queue) (*Relay, error) {
	if queue == nil {
		return nil, errors.New("realtime relay: queue is required")
	}
	return &Relay{queue: queue}, nil
}

// Publish enqueues the notification for the API process.
func (r *Relay) Publish(ctx context.Context, room, event string, payload any) error {
	if strings.TrimSpace(room) == "" || strings.TrimSpace(event) == "" {
		return errors.New("realtime relay: room and event are required")
	}
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	_, err = r.queue.Enqueue(ctx, Notification{Room: room, Event: event, Data: data}, jobs.EnqueueOptions{
		Key:      room + ":" + event,
		Attempts: 1,
	})
	return err
}

// RelayHandler consumes relayed notifications and publishes them to target. Failures are
// permanent so a notification is never redelivered.
func RelayHandler(target Publisher) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		var n Notification
		if err := job.Decode(&n); err != nil {
			return jobs.Permanent(err)
		}
		if err := target.Publish(ctx, n.Room, n.Event, n.Data); err != nil {
			return jobs.Permanent(err)
		}
		return nil
	}
}
