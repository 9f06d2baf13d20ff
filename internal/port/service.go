package port

import (
	"context"
	"io"

	"extornos/internal/domain"

	"github.com/google/uuid"
)

type RefundService interface {
	CreateRefund(ctx context.Context, req *domain.CreateRefundReq) (*domain.Outcome, error)
	GetRefund(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error)
	ListRefunds(ctx context.Context, f domain.RefundFilter) ([]*domain.RefundRequest, error)
	CorrectRefund(ctx context.Context, id uuid.UUID, c domain.RefundCorrection) (*domain.RefundRequest, error)
	ProcessRefund(ctx context.Context, id uuid.UUID, req *domain.ProcessRefundReq) (*domain.Outcome, error)
	ConfirmRefund(ctx context.Context, token string, ip string) (*domain.Outcome, error)
	RejectRefund(ctx context.Context, id uuid.UUID, req *domain.RejectRefundReq) (*domain.Outcome, error)
	CompleteRefund(ctx context.Context, id uuid.UUID, req *domain.CompleteRefundReq) (*domain.Outcome, error)
	DeleteRefund(ctx context.Context, id uuid.UUID) (*domain.Outcome, error)
	LookupConfirmation(ctx context.Context, token string) (*domain.ConfirmationView, error)
}

type EmailConfigService interface {
	Current(ctx context.Context) (*domain.EmailConfig, error)
	Update(ctx context.Context, cfg *domain.EmailConfig) (*domain.EmailConfig, error)
	Repair(ctx context.Context) (domain.RepairReport, error)
}

type TokenIssuer interface {
	Issue() (string, error)
	// Consume validates the token shape and consumes it exactly once.
	Consume(ctx context.Context, token string, meta ConfirmMeta) (*domain.RefundRequest, error)
	WellFormed(token string) bool
}

// Notifier renders and sends one notification for the record's current state.
type Notifier interface {
	Notify(ctx context.Context, t domain.Template, r *domain.RefundRequest) (domain.DispatchResult, error)
}

type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
}

type AttachmentStore interface {
	Upload(ctx context.Context, r io.Reader, in UploadInput) (domain.Documento, error)
	// Delete makes a single best-effort attempt for every url and returns
	// the joined failures.
	Delete(ctx context.Context, urls ...string) error
}
