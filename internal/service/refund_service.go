package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"extornos/internal/domain"
	"extornos/internal/metrics"
	"extornos/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMotivoRechazo = "Sin motivo especificado"

type refundService struct {
	repo        port.RefundRepository
	tokens      port.TokenIssuer
	notifier    port.Notifier
	attachments port.AttachmentStore
	log         *zap.Logger
	now         func() time.Time
}

func NewRefundService(
	repo port.RefundRepository,
	tokens port.TokenIssuer,
	notifier port.Notifier,
	attachments port.AttachmentStore,
	log *zap.Logger,
) port.RefundService {
	return &refundService{
		repo:        repo,
		tokens:      tokens,
		notifier:    notifier,
		attachments: attachments,
		log:         log.Named("refunds"),
		now:         time.Now,
	}
}

func (s *refundService) CreateRefund(ctx context.Context, req *domain.CreateRefundReq) (*domain.Outcome, error) {
	now := s.now().UTC()
	r := &domain.RefundRequest{
		ID:                 uuid.New(),
		Matricula:          strings.ToUpper(strings.TrimSpace(req.Matricula)),
		Cliente:            strings.TrimSpace(req.Cliente),
		NumeroCliente:      strings.TrimSpace(req.NumeroCliente),
		Concepto:           req.Concepto,
		Importe:            req.Importe,
		NumeroCuenta:       strings.TrimSpace(req.NumeroCuenta),
		Concesion:          req.Concesion,
		Estado:             domain.EstadoSolicitado,
		IsTest:             req.IsTest,
		DocumentosAdjuntos: nonNil(req.DocumentosAdjuntos),
		SolicitadoPor:      req.SolicitadoPor,
		SolicitadoPorEmail: req.SolicitadoPorEmail,
		FechaSolicitud:     now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.DocumentosTramitacion = domain.Documentos{}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("extorno created",
		zap.String("extorno_id", r.ID.String()),
		zap.String("matricula", r.Matricula),
		zap.Bool("is_test", r.IsTest),
	)

	out := &domain.Outcome{Refund: r, Changed: true}
	s.notify(ctx, domain.TemplateRegistro, r, out)
	return out, nil
}

func (s *refundService) GetRefund(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *refundService) ListRefunds(ctx context.Context, f domain.RefundFilter) ([]*domain.RefundRequest, error) {
	if f.Estado != "" && !f.Estado.Valid() {
		return nil, &domain.ValidationError{Fields: map[string]string{"estado": "unknown estado"}}
	}
	return s.repo.List(ctx, f)
}

func (s *refundService) CorrectRefund(ctx context.Context, id uuid.UUID, c domain.RefundCorrection) (*domain.RefundRequest, error) {
	r, err := s.repo.Transition(ctx, id, domain.EstadoSolicitado, func(r *domain.RefundRequest) error {
		c.Apply(r)
		if err := r.Validate(); err != nil {
			return err
		}
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	var ite *domain.InvalidTransitionError
	if errors.As(err, &ite) {
		return nil, fmt.Errorf("%w (estado %s)", domain.ErrNotEditable, ite.Current)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("extorno corrected", zap.String("extorno_id", id.String()))
	return r, nil
}

func (s *refundService) ProcessRefund(ctx context.Context, id uuid.UUID, req *domain.ProcessRefundReq) (*domain.Outcome, error) {
	token, err := s.tokens.Issue()
	if err != nil {
		return nil, err
	}

	r, err := s.transition(ctx, id, domain.ActionProcess, func(r *domain.RefundRequest, now time.Time) error {
		r.ConfirmationToken = token
		r.DocumentosTramitacion = nonNil(req.DocumentosTramitacion)
		r.TramitadoPor = req.TramitadoPor
		r.FechaTramitacion = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &domain.Outcome{Refund: r, Changed: true}
	s.notify(ctx, domain.TemplateTramitacion, r, out)
	return out, nil
}

func (s *refundService) ConfirmRefund(ctx context.Context, token string, ip string) (*domain.Outcome, error) {
	r, err := s.tokens.Consume(ctx, token, port.ConfirmMeta{At: s.now().UTC(), IP: ip})
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			s.log.Info("confirmation rejected", zap.String("ip", ip))
		}
		return nil, err
	}
	metrics.Transitions.WithLabelValues(string(domain.ActionConfirm)).Inc()
	s.log.Info("extorno confirmed", zap.String("extorno_id", r.ID.String()), zap.String("ip", ip))

	out := &domain.Outcome{Refund: r, Changed: true}
	s.notify(ctx, domain.TemplateConfirmacion, r, out)
	return out, nil
}

func (s *refundService) RejectRefund(ctx context.Context, id uuid.UUID, req *domain.RejectRefundReq) (*domain.Outcome, error) {
	motivo := strings.TrimSpace(req.Motivo)
	if motivo == "" {
		motivo = defaultMotivoRechazo
	}

	r, err := s.transition(ctx, id, domain.ActionReject, func(r *domain.RefundRequest, now time.Time) error {
		r.ConfirmationToken = ""
		r.RechazadoPor = req.RechazadoPor
		r.MotivoRechazo = motivo
		r.FechaRechazo = &now
		return nil
	})
	if err != nil {
		// Same rejection delivered twice.
		if cur, ok := s.reached(ctx, id, err, domain.EstadoRechazado); ok &&
			cur.RechazadoPor == req.RechazadoPor && cur.MotivoRechazo == motivo {
			return &domain.Outcome{Refund: cur}, nil
		}
		return nil, err
	}

	out := &domain.Outcome{Refund: r, Changed: true}
	s.notify(ctx, domain.TemplateRechazo, r, out)
	return out, nil
}

func (s *refundService) CompleteRefund(ctx context.Context, id uuid.UUID, req *domain.CompleteRefundReq) (*domain.Outcome, error) {
	nombre := strings.TrimSpace(req.JustificanteNombre)
	if nombre == "" && req.JustificanteURL != "" {
		nombre = path.Base(req.JustificanteURL)
	}

	r, err := s.transition(ctx, id, domain.ActionComplete, func(r *domain.RefundRequest, now time.Time) error {
		r.JustificanteURL = req.JustificanteURL
		r.JustificanteNombre = nombre
		r.FechaRealizacion = &now
		return nil
	})
	if err != nil {
		if cur, ok := s.reached(ctx, id, err, domain.EstadoRealizado); ok && cur.JustificanteURL == req.JustificanteURL {
			return &domain.Outcome{Refund: cur}, nil
		}
		return nil, err
	}

	out := &domain.Outcome{Refund: r, Changed: true}
	s.notify(ctx, domain.TemplateRealizado, r, out)
	return out, nil
}

func (s *refundService) DeleteRefund(ctx context.Context, id uuid.UUID) (*domain.Outcome, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsTest {
		return nil, domain.ErrNotTestRecord
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.log.Info("test extorno deleted", zap.String("extorno_id", id.String()))

	out := &domain.Outcome{Refund: r, Changed: true}
	if urls := r.AttachmentURLs(); len(urls) > 0 {
		if err := s.attachments.Delete(context.WithoutCancel(ctx), urls...); err != nil {
			metrics.AttachmentCleanupFailures.Inc()
			s.log.Warn("attachment cleanup failed",
				zap.String("extorno_id", id.String()),
				zap.Strings("urls", urls),
				zap.Error(err),
			)
			out.Warn(err)
		}
	}
	return out, nil
}

func (s *refundService) LookupConfirmation(ctx context.Context, token string) (*domain.ConfirmationView, error) {
	if !s.tokens.WellFormed(token) {
		metrics.TokenRejections.Inc()
		return nil, domain.ErrTokenNotFound
	}
	r, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	v := r.ConfirmationView()
	return &v, nil
}

// transition runs one edge of the state graph as a single repository unit.
func (s *refundService) transition(
	ctx context.Context,
	id uuid.UUID,
	a domain.Action,
	fn func(r *domain.RefundRequest, now time.Time) error,
) (*domain.RefundRequest, error) {
	r, err := s.repo.Transition(ctx, id, a.Source(), func(r *domain.RefundRequest) error {
		now := s.now().UTC()
		if err := fn(r, now); err != nil {
			return err
		}
		r.Estado = a.Target()
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		var ite *domain.InvalidTransitionError
		if errors.As(err, &ite) {
			ite.Action = a
			ite.Attempted = a.Target()
		}
		s.log.Debug("transition refused",
			zap.String("extorno_id", id.String()),
			zap.String("action", string(a)),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.Transitions.WithLabelValues(string(a)).Inc()
	s.log.Info("extorno transitioned",
		zap.String("extorno_id", id.String()),
		zap.String("action", string(a)),
		zap.String("estado", string(r.Estado)),
	)
	return r, nil
}

// reached reports whether err is an invalid transition because the record
// already sits in target, and returns that record.
func (s *refundService) reached(ctx context.Context, id uuid.UUID, err error, target domain.Estado) (*domain.RefundRequest, bool) {
	var ite *domain.InvalidTransitionError
	if !errors.As(err, &ite) || ite.Current != target {
		return nil, false
	}
	cur, gerr := s.repo.GetByID(ctx, id)
	if gerr != nil || cur.Estado != target {
		return nil, false
	}
	return cur, true
}

// notify runs after the commit; failures only become warnings.
func (s *refundService) notify(ctx context.Context, t domain.Template, r *domain.RefundRequest, out *domain.Outcome) {
	res, err := s.notifier.Notify(context.WithoutCancel(ctx), t, r)
	if err != nil {
		s.log.Warn("notification failed",
			zap.String("extorno_id", r.ID.String()),
			zap.String("template", string(t)),
			zap.Error(err),
		)
		out.Warn(err)
		return
	}
	out.Notified = res.Sent
}

func nonNil(d domain.Documentos) domain.Documentos {
	if d == nil {
		return domain.Documentos{}
	}
	return d
}
