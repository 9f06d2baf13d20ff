package postgresql

import (
	"context"
	"database/sql"

	"extornos/internal/domain"
	"extornos/internal/port"

	"github.com/lib/pq"
)

const canonicalConfigID = 1

type emailConfigRepository struct {
	db *sql.DB
}

func NewEmailConfigRepository(db *sql.DB) port.EmailConfigRepository {
	return &emailConfigRepository{db: db}
}

func (r *emailConfigRepository) all(ctx context.Context) ([]domain.EmailConfig, error) {
	const query = `SELECT enabled, email_tramitador, email_pagador, cc_emails, updated_at
	FROM extornos_email_config ORDER BY id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EmailConfig
	for rows.Next() {
		var cfg domain.EmailConfig
		if err := rows.Scan(&cfg.Enabled, &cfg.EmailTramitador, &cfg.EmailPagador, pq.Array(&cfg.CCEmails), &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (r *emailConfigRepository) Get(ctx context.Context) (*domain.EmailConfig, error) {
	rows, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, domain.ErrConfigMissing
	case 1:
		return &rows[0], nil
	default:
		return nil, domain.ErrConfigDuplicate
	}
}

func (r *emailConfigRepository) Upsert(ctx context.Context, cfg *domain.EmailConfig) error {
	const query = `INSERT INTO extornos_email_config (id, enabled, email_tramitador, email_pagador, cc_emails, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		enabled = EXCLUDED.enabled,
		email_tramitador = EXCLUDED.email_tramitador,
		email_pagador = EXCLUDED.email_pagador,
		cc_emails = EXCLUDED.cc_emails,
		updated_at = EXCLUDED.updated_at`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		canonicalConfigID, cfg.Enabled, cfg.EmailTramitador, cfg.EmailPagador, pq.Array(nonNilStrings(cfg.CCEmails)), cfg.UpdatedAt)
	return err
}

func (r *emailConfigRepository) Repair(ctx context.Context, fallback domain.EmailConfig) (domain.RepairReport, error) {
	var report domain.RepairReport
	err := withTx(ctx, r.db, 0, func(txCtx context.Context) error {
		if _, err := conn(txCtx, r.db).ExecContext(txCtx, `LOCK TABLE extornos_email_config IN EXCLUSIVE MODE`); err != nil {
			return err
		}

		rows, err := r.all(txCtx)
		if err != nil {
			return err
		}
		report.RowsFound = len(rows)

		keep := fallback
		if len(rows) == 0 {
			report.Seeded = true
		} else {
			keep = domain.Latest(rows)
		}
		if len(rows) > 1 {
			report.RowsRemoved = len(rows) - 1
		}

		if _, err := conn(txCtx, r.db).ExecContext(txCtx, `DELETE FROM extornos_email_config WHERE id <> $1`, canonicalConfigID); err != nil {
			return err
		}
		report.Config = keep
		return r.Upsert(txCtx, &keep)
	})
	if err != nil {
		return domain.RepairReport{}, err
	}
	return report, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
