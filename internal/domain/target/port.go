package target

import "context"

type Repo interface {
	Create(ctx context.Context, t *Target) error
	GetByID(ctx context.Context, id int64) (*Target, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*Target, error)
	ListEnabledByInstance(ctx context.Context, instanceID string) ([]*Target, error)
	Update(ctx context.Context, t *Target) error
}

type StateRepo interface {
	Get(ctx context.Context, targetID int64) (*State, error)
	GetForTargets(ctx context.Context, targetIDs []int64) (map[int64]*State, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*State, error)
	Upsert(ctx context.Context, s *State) error
	UpdateAlertFields(ctx context.Context, s *State) error
}
