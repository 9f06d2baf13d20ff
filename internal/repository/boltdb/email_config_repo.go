package boltdb

import (
	"context"
	"encoding/json"

	"extornos/internal/domain"
	"extornos/internal/port"

	bolt "github.com/boltdb/bolt"
)

var emailConfigKey = []byte("default")

type emailConfigRepository struct {
	db *bolt.DB
}

func NewEmailConfigRepository(db *bolt.DB) port.EmailConfigRepository {
	return &emailConfigRepository{db: db}
}

func (r *emailConfigRepository) Get(ctx context.Context) (*domain.EmailConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []domain.EmailConfig
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		rows, err = allConfigs(tx.Bucket(emailConfigBucket))
		return err
	})
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
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(emailConfigBucket).Put(emailConfigKey, data)
	})
}

func (r *emailConfigRepository) Repair(ctx context.Context, fallback domain.EmailConfig) (domain.RepairReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.RepairReport{}, err
	}
	var report domain.RepairReport
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(emailConfigBucket)
		rows, err := allConfigs(b)
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

		var stale [][]byte
		err = b.ForEach(func(k, _ []byte) error {
			if string(k) != string(emailConfigKey) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		if len(rows) > 1 {
			report.RowsRemoved = len(rows) - 1
		}

		data, err := json.Marshal(keep)
		if err != nil {
			return err
		}
		report.Config = keep
		return b.Put(emailConfigKey, data)
	})
	if err != nil {
		return domain.RepairReport{}, err
	}
	return report, nil
}

func allConfigs(b *bolt.Bucket) ([]domain.EmailConfig, error) {
	var rows []domain.EmailConfig
	err := b.ForEach(func(k, v []byte) error {
		var cfg domain.EmailConfig
		if err := json.Unmarshal(v, &cfg); err != nil {
			return err
		}
		rows = append(rows, cfg)
		return nil
	})
	return rows, err
}
