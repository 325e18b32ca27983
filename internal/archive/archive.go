// Package archive keeps conversation snapshots of ended sessions so the admin
// API can still serve their history.
package archive

import (
	"context"
	"errors"

	"voicedesk/agent/internal/session"
)

var (
	ErrNotFound  = errors.New("archive: session not found")
	ErrInvalidID = errors.New("archive: invalid session id")
)

// Store is implemented by RedisStore and Memory.
type Store interface {
	Save(ctx context.Context, snap session.Snapshot) error
	Load(ctx context.Context, id string) (session.Snapshot, error)
	Ping(ctx context.Context) error
}
