package pubsub

import "context"

// Subjects, relative to the configured broadcast prefix
const (
	SubjectView = "view" // derived view changed (sort/filter/items)
	SubjectFeed = "feed" // individual price_update messages
)

type Broadcaster interface {
	Publish(ctx context.Context, subject string, data any) error
	Health(ctx context.Context) error
}

// Nop is used when no broker is configured
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Health(context.Context) error               { return nil }
