package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"extornos/internal/domain"
	"extornos/internal/port"

	"github.com/google/uuid"
)

const refundColumns = `id, matricula, cliente, numero_cliente, concepto, importe, numero_cuenta, concesion,
	estado, confirmation_token, is_test, documentos_adjuntos, documentos_tramitacion,
	justificante_url, justificante_nombre, solicitado_por, solicitado_por_email, tramitado_por,
	rechazado_por, motivo_rechazo, ultima_ip_confirmacion, fecha_solicitud, fecha_tramitacion,
	fecha_confirmacion, fecha_rechazo, fecha_realizacion, created_at, updated_at`

type refundRepository struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewRefundRepository serializes transitions of one record with SELECT ... FOR
// UPDATE; lockTimeout bounds the wait for that lock.
func NewRefundRepository(db *sql.DB, lockTimeout time.Duration) port.RefundRepository {
	return &refundRepository{db: db, lockTimeout: lockTimeout}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRefund(row scanner) (*domain.RefundRequest, error) {
	var (
		r     domain.RefundRequest
		token sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Matricula, &r.Cliente, &r.NumeroCliente, &r.Concepto, &r.Importe, &r.NumeroCuenta, &r.Concesion,
		&r.Estado, &token, &r.IsTest, &r.DocumentosAdjuntos, &r.DocumentosTramitacion,
		&r.JustificanteURL, &r.JustificanteNombre, &r.SolicitadoPor, &r.SolicitadoPorEmail, &r.TramitadoPor,
		&r.RechazadoPor, &r.MotivoRechazo, &r.UltimaIPConfirmacion, &r.FechaSolicitud, &r.FechaTramitacion,
		&r.FechaConfirmacion, &r.FechaRechazo, &r.FechaRealizacion, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ConfirmationToken = token.String
	return &r, nil
}

func (rr *refundRepository) Create(ctx context.Context, r *domain.RefundRequest) error {
	const query = `INSERT INTO extornos (` + refundColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24, $25, $26, $27, $28)`

	_, err := conn(ctx, rr.db).ExecContext(ctx, query,
		r.ID, r.Matricula, r.Cliente, r.NumeroCliente, r.Concepto, r.Importe, r.NumeroCuenta, r.Concesion,
		r.Estado, nullString(r.ConfirmationToken), r.IsTest, r.DocumentosAdjuntos, r.DocumentosTramitacion,
		r.JustificanteURL, r.JustificanteNombre, r.SolicitadoPor, r.SolicitadoPorEmail, r.TramitadoPor,
		r.RechazadoPor, r.MotivoRechazo, r.UltimaIPConfirmacion, r.FechaSolicitud, r.FechaTramitacion,
		r.FechaConfirmacion, r.FechaRechazo, r.FechaRealizacion, r.CreatedAt, r.UpdatedAt,
	)
	return mapPqError(err)
}

func (rr *refundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error) {
	const query = `SELECT ` + refundColumns + ` FROM extornos WHERE id = $1`

	r, err := scanRefund(conn(ctx, rr.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRefundNotFound
	}
	return r, err
}

func (rr *refundRepository) GetByToken(ctx context.Context, token string) (*domain.RefundRequest, error) {
	const query = `SELECT ` + refundColumns + ` FROM extornos
	WHERE confirmation_token = $1 AND estado = 'tramitado'`

	r, err := scanRefund(conn(ctx, rr.db).QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	return r, err
}

func (rr *refundRepository) List(ctx context.Context, f domain.RefundFilter) ([]*domain.RefundRequest, error) {
	var (
		where []string
		args  []any
	)
	if f.Estado != "" {
		args = append(args, f.Estado)
		where = append(where, fmt.Sprintf("estado = $%d", len(args)))
	}
	if f.IsTest != nil {
		args = append(args, *f.IsTest)
		where = append(where, fmt.Sprintf("is_test = $%d", len(args)))
	}

	query := `SELECT ` + refundColumns + ` FROM extornos`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := conn(ctx, rr.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*domain.RefundRequest{}
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (rr *refundRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from domain.Estado,
	fn func(r *domain.RefundRequest) error,
) (*domain.RefundRequest, error) {
	const lockQuery = `SELECT ` + refundColumns + ` FROM extornos WHERE id = $1 FOR UPDATE`

	var result *domain.RefundRequest
	err := withTx(ctx, rr.db, rr.lockTimeout, func(txCtx context.Context) error {
		r, err := scanRefund(conn(txCtx, rr.db).QueryRowContext(txCtx, lockQuery, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRefundNotFound
		}
		if err != nil {
			return err
		}
		if r.Estado != from {
			return &domain.InvalidTransitionError{Current: r.Estado}
		}

		if err := fn(r); err != nil {
			return err
		}
		if err := rr.update(txCtx, r, from); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, mapPqError(err)
	}
	return result, nil
}

// update writes every mutable column; the estado guard is redundant under the
// row lock but keeps a stale writer from ever overwriting a newer state.
func (rr *refundRepository) update(ctx context.Context, r *domain.RefundRequest, from domain.Estado) error {
	const query = `UPDATE extornos SET
		matricula = $2, cliente = $3, numero_cliente = $4, concepto = $5, importe = $6, numero_cuenta = $7,
		concesion = $8, estado = $9, confirmation_token = $10, documentos_adjuntos = $11,
		documentos_tramitacion = $12, justificante_url = $13, justificante_nombre = $14, tramitado_por = $15,
		rechazado_por = $16, motivo_rechazo = $17, fecha_tramitacion = $18, fecha_rechazo = $19,
		fecha_realizacion = $20, updated_at = $21
	WHERE id = $1 AND estado = $22`

	res, err := conn(ctx, rr.db).ExecContext(ctx, query,
		r.ID, r.Matricula, r.Cliente, r.NumeroCliente, r.Concepto, r.Importe, r.NumeroCuenta,
		r.Concesion, r.Estado, nullString(r.ConfirmationToken), r.DocumentosAdjuntos,
		r.DocumentosTramitacion, r.JustificanteURL, r.JustificanteNombre, r.TramitadoPor,
		r.RechazadoPor, r.MotivoRechazo, r.FechaTramitacion, r.FechaRechazo,
		r.FechaRealizacion, r.UpdatedAt, from,
	)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return &domain.InvalidTransitionError{Current: r.Estado}
	}
	return nil
}

func (rr *refundRepository) ConsumeToken(ctx context.Context, token string, meta port.ConfirmMeta) (*domain.RefundRequest, error) {
	const query = `UPDATE extornos SET
		estado = 'confirmado', confirmation_token = NULL, fecha_confirmacion = $2,
		ultima_ip_confirmacion = $3, updated_at = $2
	WHERE confirmation_token = $1 AND estado = 'tramitado'
	RETURNING ` + refundColumns

	r, err := scanRefund(conn(ctx, rr.db).QueryRowContext(ctx, query, token, meta.At, meta.IP))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, mapPqError(err)
	}
	return r, nil
}

func (rr *refundRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM extornos WHERE id = $1`

	res, err := conn(ctx, rr.db).ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domain.ErrRefundNotFound
	}
	return nil
}
