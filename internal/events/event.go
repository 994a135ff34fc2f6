// Package events publishes optimization lifecycle events to in-process
// subscribers, Redis pub/sub and webhooks.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	InProgress     Type = "OPTIMIZATION_IN_PROGRESS"
	Completed      Type = "OPTIMIZATION_COMPLETED"
	Failed         Type = "OPTIMIZATION_ERROR"
	MetadataUpdate Type = "OPTIMIZATION_METADATA_UPDATE"
)

type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Source    string          `json:"source"`
	ProblemID string          `json:"problemId,omitempty"`
	Time      time.Time       `json:"time"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// New stamps an event with a fresh id and the current time. Detail is
// encoded as JSON.
func New(source string, t Type, problemID string, detail any) (Event, error) {
	evt := Event{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    source,
		ProblemID: problemID,
		Time:      time.Now().UTC(),
	}
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return Event{}, err
		}
		evt.Detail = b
	}
	return evt, nil
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Follower streams the events of one problem, or of every problem with All,
// until ctx ends.
type Follower interface {
	Follow(ctx context.Context, problemID string) (<-chan Event, error)
}

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
