package ports

import (
	"context"

	"github.com/weewoocad/accounts/internal/core/domain"
)

// AccountStore loads and persists the whole account collection as one snapshot.
//
// Load returns an empty snapshot when nothing has been stored yet, and
// domain.ErrStorageUnavailable when existing storage cannot be read. Save must
// replace the stored collection atomically.
type AccountStore interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	Save(ctx context.Context, accounts domain.Snapshot) error
}
