package instance

import "context"

type Repo interface {
	Create(ctx context.Context, i *Instance) error
	GetByID(ctx context.Context, id string) (*Instance, error)
	List(ctx context.Context) ([]*Instance, error)
	ListEnabled(ctx context.Context) ([]*Instance, error)
	Update(ctx context.Context, i *Instance) error
}
