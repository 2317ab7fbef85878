package event

import "context"

type Repo interface {
	Insert(ctx context.Context, e *Event) error
	ListByInstance(ctx context.Context, instanceID string, limit int) ([]*Event, error)
}
