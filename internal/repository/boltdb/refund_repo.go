package boltdb

import (
	"context"
	"fmt"
	"sort"

	"extornos/internal/domain"
	"extornos/internal/port"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"
)

type refundRepository struct {
	db *bolt.DB
}

// NewRefundRepository relies on bolt serializing writers: every Update
// transaction is the per-record lock.
func NewRefundRepository(db *bolt.DB) port.RefundRepository {
	return &refundRepository{db: db}
}

func (r *refundRepository) Create(ctx context.Context, refund *domain.RefundRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(refundsBucket)
		key := []byte(refund.ID.String())
		if b.Get(key) != nil {
			return fmt.Errorf("extorno %s already exists", refund.ID)
		}
		if refund.ConfirmationToken != "" {
			if err := indexToken(tx, refund.ConfirmationToken, refund.ID); err != nil {
				return err
			}
		}
		return put(b, refund)
	})
}

func (r *refundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var refund *domain.RefundRequest
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		refund, err = get(tx.Bucket(refundsBucket), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

func (r *refundRepository) GetByToken(ctx context.Context, token string) (*domain.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var refund *domain.RefundRequest
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		refund, err = byToken(tx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

func (r *refundRepository) List(ctx context.Context, f domain.RefundFilter) ([]*domain.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := []*domain.RefundRequest{}
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(refundsBucket).ForEach(func(k, v []byte) error {
			refund, err := domain.UnmarshalStored(v)
			if err != nil {
				return err
			}
			if f.Match(refund) {
				items = append(items, refund)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}

func (r *refundRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from domain.Estado,
	fn func(r *domain.RefundRequest) error,
) (*domain.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result *domain.RefundRequest
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(refundsBucket)
		refund, err := get(b, id)
		if err != nil {
			return err
		}
		if refund.Estado != from {
			return &domain.InvalidTransitionError{Current: refund.Estado}
		}

		oldToken := refund.ConfirmationToken
		if err := fn(refund); err != nil {
			return err
		}

		if refund.ConfirmationToken != oldToken {
			if oldToken != "" {
				if err := tx.Bucket(tokensBucket).Delete([]byte(oldToken)); err != nil {
					return err
				}
			}
			if refund.ConfirmationToken != "" {
				if err := indexToken(tx, refund.ConfirmationToken, refund.ID); err != nil {
					return err
				}
			}
		}

		result = refund
		return put(b, refund)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *refundRepository) ConsumeToken(ctx context.Context, token string, meta port.ConfirmMeta) (*domain.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result *domain.RefundRequest
	err := r.db.Update(func(tx *bolt.Tx) error {
		refund, err := byToken(tx, token)
		if err != nil {
			return err
		}

		at := meta.At
		refund.Estado = domain.EstadoConfirmado
		refund.ConfirmationToken = ""
		refund.FechaConfirmacion = &at
		refund.UltimaIPConfirmacion = meta.IP
		refund.UpdatedAt = at

		if err := tx.Bucket(tokensBucket).Delete([]byte(token)); err != nil {
			return err
		}
		result = refund
		return put(tx.Bucket(refundsBucket), refund)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *refundRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(refundsBucket)
		refund, err := get(b, id)
		if err != nil {
			return err
		}
		if refund.ConfirmationToken != "" {
			if err := tx.Bucket(tokensBucket).Delete([]byte(refund.ConfirmationToken)); err != nil {
				return err
			}
		}
		return b.Delete([]byte(id.String()))
	})
}

func get(b *bolt.Bucket, id uuid.UUID) (*domain.RefundRequest, error) {
	v := b.Get([]byte(id.String()))
	if v == nil {
		return nil, domain.ErrRefundNotFound
	}
	return domain.UnmarshalStored(v)
}

func put(b *bolt.Bucket, refund *domain.RefundRequest) error {
	data, err := refund.MarshalStored()
	if err != nil {
		return err
	}
	return b.Put([]byte(refund.ID.String()), data)
}

// byToken resolves a token only while its record is still tramitado.
func byToken(tx *bolt.Tx, token string) (*domain.RefundRequest, error) {
	if token == "" {
		return nil, domain.ErrTokenNotFound
	}
	raw := tx.Bucket(tokensBucket).Get([]byte(token))
	if raw == nil {
		return nil, domain.ErrTokenNotFound
	}
	id, err := uuid.ParseBytes(raw)
	if err != nil {
		return nil, domain.ErrTokenNotFound
	}
	refund, err := get(tx.Bucket(refundsBucket), id)
	if err != nil {
		return nil, domain.ErrTokenNotFound
	}
	if refund.Estado != domain.EstadoTramitado || refund.ConfirmationToken != token {
		return nil, domain.ErrTokenNotFound
	}
	return refund, nil
}

func indexToken(tx *bolt.Tx, token string, id uuid.UUID) error {
	b := tx.Bucket(tokensBucket)
	if b.Get([]byte(token)) != nil {
		return domain.ErrDuplicateToken
	}
	return b.Put([]byte(token), []byte(id.String()))
}
