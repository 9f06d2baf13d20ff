package service

import (
	"context"
	"errors"
	"time"

	"extornos/internal/domain"
	"extornos/internal/port"

	"go.uber.org/zap"
)

type emailConfigService struct {
	repo     port.EmailConfigRepository
	fallback domain.EmailConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewEmailConfigService seeds fallback when no config has been stored yet.
func NewEmailConfigService(repo port.EmailConfigRepository, fallback domain.EmailConfig, log *zap.Logger) port.EmailConfigService {
	return &emailConfigService{
		repo:     repo,
		fallback: fallback,
		log:      log.Named("email_config"),
		now:      time.Now,
	}
}

// Current returns the singleton, repairing the table first when it is
// missing or duplicated.
func (s *emailConfigService) Current(ctx context.Context) (*domain.EmailConfig, error) {
	cfg, err := s.repo.Get(ctx)
	if errors.Is(err, domain.ErrConfigMissing) || errors.Is(err, domain.ErrConfigDuplicate) {
		s.log.Warn("email config needs repair", zap.Error(err))
		report, rerr := s.Repair(ctx)
		if rerr != nil {
			return nil, rerr
		}
		return &report.Config, nil
	}
	return cfg, err
}

func (s *emailConfigService) Update(ctx context.Context, cfg *domain.EmailConfig) (*domain.EmailConfig, error) {
	out := *cfg
	out.Normalize()
	out.UpdatedAt = s.now().UTC()
	if err := s.repo.Upsert(ctx, &out); err != nil {
		return nil, err
	}
	s.log.Info("email config updated",
		zap.Bool("enabled", out.Enabled),
		zap.String("tramitador", out.EmailTramitador),
		zap.String("pagador", out.EmailPagador),
		zap.Int("cc", len(out.CCEmails)),
	)
	return &out, nil
}

func (s *emailConfigService) Repair(ctx context.Context) (domain.RepairReport, error) {
	fb := s.fallback
	fb.CCEmails = append([]string(nil), s.fallback.CCEmails...)
	fb.Normalize()
	fb.UpdatedAt = s.now().UTC()

	report, err := s.repo.Repair(ctx, fb)
	if err != nil {
		return report, err
	}
	if report.Repaired() {
		s.log.Info("email config repaired",
			zap.Int("rows_found", report.RowsFound),
			zap.Int("rows_removed", report.RowsRemoved),
			zap.Bool("seeded", report.Seeded),
		)
	}
	return report, nil
}
