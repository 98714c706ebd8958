package boxsync

import (
	"context"

	"github.com/five82/recipunto/internal/backend"
	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/realtime"
)

// Table is the backend table the syncer mirrors.
const Table = "recycling_boxes"

// Backend is the box API the syncer reads from and forwards mutations to.
// *backend.Client implements it.
type Backend interface {
	FetchBoxes(ctx context.Context) ([]box.Record, error)
	CreateBox(ctx context.Context, in backend.CreateInput) (box.Record, error)
	UpdateBox(ctx context.Context, id string, in backend.UpdateInput) (box.Record, error)
	UpdateBoxStatus(ctx context.Context, id string, in backend.StatusInput) (box.Record, error)
	DeleteBox(ctx context.Context, id string) error
}

// Stream is one live change subscription.
type Stream interface {
	Changes() <-chan realtime.Change
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Feed opens change subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, table string) (Stream, error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context, table string) (Stream, error)

// Subscribe calls f.
func (f FeedFunc) Subscribe(ctx context.Context, table string) (Stream, error) {
	return f(ctx, table)
}

// RealtimeFeed adapts a realtime client to Feed.
func RealtimeFeed(c *realtime.Client) Feed {
	return FeedFunc(func(ctx context.Context, table string) (Stream, error) {
		sub, err := c.Subscribe(ctx, table)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})
}

var _ Backend = (*backend.Client)(nil)
