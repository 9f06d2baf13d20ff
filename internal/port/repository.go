package port

import (
	"context"
	"time"

	"extornos/internal/domain"

	"github.com/google/uuid"
)

// ConfirmMeta is written in the same update that consumes a token.
type ConfirmMeta struct {
	At time.Time
	IP string
}

type RefundRepository interface {
	Create(ctx context.Context, r *domain.RefundRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error)
	// GetByToken only resolves records that are still tramitado.
	GetByToken(ctx context.Context, token string) (*domain.RefundRequest, error)
	List(ctx context.Context, f domain.RefundFilter) ([]*domain.RefundRequest, error)
	// Transition loads the record under a per-record lock, fails with an
	// *domain.InvalidTransitionError carrying the current estado unless it is
	// in state from, applies fn and persists the result as one unit.
	Transition(ctx context.Context, id uuid.UUID, from domain.Estado, fn func(r *domain.RefundRequest) error) (*domain.RefundRequest, error)
	// ConsumeToken atomically moves the tramitado record holding token to
	// confirmado and clears the token. Any other case is domain.ErrTokenNotFound.
	ConsumeToken(ctx context.Context, token string, meta ConfirmMeta) (*domain.RefundRequest, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type EmailConfigRepository interface {
	// Get returns domain.ErrConfigMissing or domain.ErrConfigDuplicate when
	// the singleton invariant does not hold.
	Get(ctx context.Context) (*domain.EmailConfig, error)
	Upsert(ctx context.Context, cfg *domain.EmailConfig) error
	// Repair collapses all rows into the canonical one keeping the most
	// recent values. With no rows it seeds fallback.
	Repair(ctx context.Context, fallback domain.EmailConfig) (domain.RepairReport, error)
}
