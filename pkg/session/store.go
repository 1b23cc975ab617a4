package session

import (
	"context"
	"errors"
)

var (
	// ErrStoreUnavailable wraps transport failures talking to the backing store.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Store persists sessions keyed by token. A miss is (nil, nil); errors mean
// the store itself failed.
type Store interface {
	Find(ctx context.Context, token string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, token string) error
}
