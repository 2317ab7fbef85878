package check

import "context"

type Repo interface {
	Insert(ctx context.Context, c *Check) error
	ListByTarget(ctx context.Context, targetID int64, limit int) ([]*Check, error)
}
