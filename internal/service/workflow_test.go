package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"extornos/internal/domain"
	"extornos/internal/mailer"
	"extornos/internal/notification"
	"extornos/internal/port"
	"extornos/internal/repository/boltdb"
	"extornos/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type workflow struct {
	svc      port.RefundService
	configs  port.EmailConfigService
	repo     port.RefundRepository
	mail     *mailer.Mock
	uploads  *storage.Attachments
	localDir string
}

func newWorkflow(t *testing.T) *workflow {
	t.Helper()
	log := zaptest.NewLogger(t)
	dir := t.TempDir()

	db, err := boltdb.Open(filepath.Join(dir, "extornos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w := &workflow{
		repo:     boltdb.NewRefundRepository(db),
		mail:     &mailer.Mock{},
		localDir: filepath.Join(dir, "uploads"),
	}
	w.configs = NewEmailConfigService(boltdb.NewEmailConfigRepository(db), domain.EmailConfig{
		Enabled:         true,
		EmailTramitador: "tramitador@cvo.test",
		EmailPagador:    "pagador@cvo.test",
	}, log)
	w.uploads = storage.NewAttachments(storage.NewLocal(w.localDir, "/uploads/extornos"), 10<<20)

	dispatcher, err := notification.NewDispatcher(w.mail, w.configs, "https://extornos.test", log)
	require.NoError(t, err)

	w.svc = NewRefundService(w.repo, NewTokenIssuer(w.repo, 32), dispatcher, w.uploads, log)
	return w
}

func (w *workflow) create(t *testing.T, isTest bool) *domain.RefundRequest {
	t.Helper()
	out, err := w.svc.CreateRefund(context.Background(), &domain.CreateRefundReq{
		Matricula:          "1234ABC",
		Cliente:            "Ana Pérez",
		Concepto:           "Devolución señal",
		Importe:            decimal.RequireFromString("350.00"),
		NumeroCuenta:       "ES7620770024003102575766",
		Concesion:          1,
		IsTest:             isTest,
		SolicitadoPor:      "Luis",
		SolicitadoPorEmail: "luis@cvo.test",
	})
	require.NoError(t, err)
	return out.Refund
}

func (w *workflow) process(t *testing.T, r *domain.RefundRequest, docs domain.Documentos) string {
	t.Helper()
	_, err := w.svc.ProcessRefund(context.Background(), r.ID, &domain.ProcessRefundReq{TramitadoPor: "Marta", DocumentosTramitacion: docs})
	require.NoError(t, err)
	stored, err := w.repo.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ConfirmationToken)
	return stored.ConfirmationToken
}

func TestWorkflow_HappyPath(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	r := w.create(t, false)
	token := w.process(t, r, nil)

	view, err := w.svc.LookupConfirmation(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "1234ABC", view.Matricula)
	assert.Equal(t, domain.EstadoTramitado, view.Estado)

	out, err := w.svc.ConfirmRefund(ctx, token, "192.0.2.10")
	require.NoError(t, err)
	assert.Equal(t, domain.EstadoConfirmado, out.Refund.Estado)
	assert.Equal(t, "192.0.2.10", out.Refund.UltimaIPConfirmacion)
	assert.Empty(t, out.Refund.ConfirmationToken)

	_, err = w.svc.ConfirmRefund(ctx, token, "192.0.2.10")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	done, err := w.svc.CompleteRefund(ctx, r.ID, &domain.CompleteRefundReq{JustificanteURL: "https://files.test/pago.pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.EstadoRealizado, done.Refund.Estado)

	again, err := w.svc.CompleteRefund(ctx, r.ID, &domain.CompleteRefundReq{JustificanteURL: "https://files.test/pago.pdf"})
	require.NoError(t, err)
	assert.False(t, again.Changed)

	emails := w.mail.Sent()
	require.Len(t, emails, 4)
	assert.Contains(t, emails[0].Subject, "Nuevo extorno")
	assert.Contains(t, emails[1].HTMLBody, "https://extornos.test/extornos/confirmacion?token="+token)
	assert.Contains(t, emails[2].Subject, "confirmado")
	assert.Contains(t, emails[3].HTMLBody, "https://files.test/pago.pdf")
	for _, e := range emails {
		assert.NotContains(t, e.Subject, token)
	}
}

func TestWorkflow_RejectInvalidatesToken(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	r := w.create(t, false)
	token := w.process(t, r, nil)

	out, err := w.svc.RejectRefund(ctx, r.ID, &domain.RejectRefundReq{RechazadoPor: "Marta", Motivo: "IBAN incorrecto"})
	require.NoError(t, err)
	assert.Equal(t, domain.EstadoRechazado, out.Refund.Estado)

	_, err = w.svc.LookupConfirmation(ctx, token)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	_, err = w.svc.ConfirmRefund(ctx, token, "192.0.2.10")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	got, err := w.svc.GetRefund(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EstadoRechazado, got.Estado)
	assert.Nil(t, got.FechaConfirmacion)
}

func TestWorkflow_ConcurrentConfirmSingleWinner(t *testing.T) {
	w := newWorkflow(t)
	r := w.create(t, false)
	token := w.process(t, r, nil)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.svc.ConfirmRefund(context.Background(), token, "192.0.2.10")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, domain.ErrTokenNotFound) {
				notFound++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, notFound)

	confirmations := 0
	for _, e := range w.mail.Sent() {
		if strings.Contains(e.Subject, "confirmado") {
			confirmations++
		}
	}
	assert.Equal(t, 1, confirmations)
}

func TestWorkflow_ProcessTwiceKeepsToken(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	r := w.create(t, false)
	token := w.process(t, r, nil)

	_, err := w.svc.ProcessRefund(ctx, r.ID, &domain.ProcessRefundReq{TramitadoPor: "Otra"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, err := w.repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, token, stored.ConfirmationToken)
	assert.Equal(t, "Marta", stored.TramitadoPor)
}

func TestWorkflow_AllDocumentsListed(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	out, err := w.svc.CreateRefund(ctx, &domain.CreateRefundReq{
		Matricula:          "5555XYZ",
		Cliente:            "Ana",
		Concepto:           "Señal",
		Importe:            decimal.NewFromInt(10),
		NumeroCuenta:       "ES00",
		SolicitadoPorEmail: "luis@cvo.test",
		DocumentosAdjuntos: domain.Documentos{{Nombre: "dni.pdf", URL: "/uploads/extornos/dni.pdf"}, {Nombre: "contrato.pdf", URL: "/uploads/extornos/contrato.pdf"}},
	})
	require.NoError(t, err)

	w.process(t, out.Refund, domain.Documentos{
		{Nombre: "orden.pdf", URL: "/uploads/extornos/orden.pdf"},
		{Nombre: "cuenta.pdf", URL: "/uploads/extornos/cuenta.pdf"},
		{Nombre: "extra.pdf", URL: "/uploads/extornos/extra.pdf"},
	})

	emails := w.mail.Sent()
	require.Len(t, emails, 2)
	body := emails[1].HTMLBody
	assert.Contains(t, body, "DOCUMENTOS ADJUNTOS (5)")
	for _, name := range []string{"dni.pdf", "contrato.pdf", "orden.pdf", "cuenta.pdf", "extra.pdf"} {
		assert.Contains(t, body, name)
	}
}

func TestWorkflow_DeleteTestRecordRemovesAttachments(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	doc, err := w.uploads.Upload(ctx, strings.NewReader("%PDF-1.4"), port.UploadInput{Filename: "dni.pdf", ContentType: "application/pdf", Size: 8})
	require.NoError(t, err)

	out, err := w.svc.CreateRefund(ctx, &domain.CreateRefundReq{
		Matricula:          "TEST01",
		Cliente:            "Prueba",
		Concepto:           "Prueba",
		Importe:            decimal.NewFromInt(1),
		NumeroCuenta:       "ES00",
		IsTest:             true,
		DocumentosAdjuntos: domain.Documentos{doc},
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(w.localDir, filepath.Base(doc.URL)))

	deleted, err := w.svc.DeleteRefund(ctx, out.Refund.ID)
	require.NoError(t, err)
	assert.Empty(t, deleted.Warnings)
	assert.NoFileExists(t, filepath.Join(w.localDir, filepath.Base(doc.URL)))

	_, err = w.svc.GetRefund(ctx, out.Refund.ID)
	assert.ErrorIs(t, err, domain.ErrRefundNotFound)

	live := w.create(t, false)
	_, err = w.svc.DeleteRefund(ctx, live.ID)
	assert.ErrorIs(t, err, domain.ErrNotTestRecord)
}

func TestWorkflow_DeleteWithMissingAttachmentWarns(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	out, err := w.svc.CreateRefund(ctx, &domain.CreateRefundReq{
		Matricula:          "TEST02",
		Cliente:            "Prueba",
		Concepto:           "Prueba",
		Importe:            decimal.NewFromInt(1),
		NumeroCuenta:       "ES00",
		IsTest:             true,
		DocumentosAdjuntos: domain.Documentos{{Nombre: "ghost.pdf", URL: "/uploads/extornos/extorno-ghost.pdf"}},
	})
	require.NoError(t, err)

	deleted, err := w.svc.DeleteRefund(ctx, out.Refund.ID)
	require.NoError(t, err)
	assert.Len(t, deleted.Warnings, 1)

	_, err = w.svc.GetRefund(ctx, out.Refund.ID)
	assert.ErrorIs(t, err, domain.ErrRefundNotFound)
}

func TestWorkflow_MailOutageNeverBlocksTransitions(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	w.mail.SetErr(assert.AnError)

	out, err := w.svc.CreateRefund(ctx, &domain.CreateRefundReq{
		Matricula: "1234ABC", Cliente: "Ana", Concepto: "Señal",
		Importe: decimal.NewFromInt(5), NumeroCuenta: "ES00",
	})
	require.NoError(t, err)
	assert.Len(t, out.Warnings, 1)

	processed, err := w.svc.ProcessRefund(ctx, out.Refund.ID, &domain.ProcessRefundReq{TramitadoPor: "Marta"})
	require.NoError(t, err)
	assert.Equal(t, domain.EstadoTramitado, processed.Refund.Estado)
	assert.Len(t, processed.Warnings, 1)
}

func TestWorkflow_DisabledNotificationsAreSkipped(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	_, err := w.configs.Update(ctx, &domain.EmailConfig{Enabled: false})
	require.NoError(t, err)

	out, err := w.svc.CreateRefund(ctx, &domain.CreateRefundReq{
		Matricula: "1234ABC", Cliente: "Ana", Concepto: "Señal",
		Importe: decimal.NewFromInt(5), NumeroCuenta: "ES00",
	})
	require.NoError(t, err)
	assert.False(t, out.Notified)
	assert.Empty(t, out.Warnings)
	assert.Empty(t, w.mail.Sent())
}
