package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"extornos/internal/domain"
	"extornos/internal/mailer"
	"extornos/internal/notification"
	"extornos/internal/port"
	"extornos/internal/repository/boltdb"
	"extornos/internal/service"
	"extornos/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testAuthToken = "s3cret"

type testServer struct {
	srv  *httptest.Server
	repo port.RefundRepository
	mail *mailer.Mock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	dir := t.TempDir()

	db, err := boltdb.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := boltdb.NewRefundRepository(db)
	configs := service.NewEmailConfigService(boltdb.NewEmailConfigRepository(db), domain.EmailConfig{
		Enabled:         true,
		EmailTramitador: "tramitador@cvo.test",
		EmailPagador:    "pagador@cvo.test",
	}, log)
	mail := &mailer.Mock{}
	dispatcher, err := notification.NewDispatcher(mail, configs, "https://extornos.test", log)
	require.NoError(t, err)
	uploads := storage.NewAttachments(storage.NewLocal(filepath.Join(dir, "uploads"), "/uploads/extornos"), 1<<20)
	refunds := service.NewRefundService(repo, service.NewTokenIssuer(repo, 32), dispatcher, uploads, log)

	h := NewHandler(refunds, configs, uploads, log, Options{
		AuthToken:     testAuthToken,
		MaxUploadSize: 1 << 20,
		MaxFiles:      3,
		Files:         http.FileServer(http.Dir(filepath.Join(dir, "uploads"))),
		FilesPath:     "/uploads/extornos",
	})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, repo: repo, mail: mail}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type outcomeBody struct {
	Extorno struct {
		ID     string        `json:"id"`
		Estado domain.Estado `json:"estado"`
	} `json:"extorno"`
	Changed  bool     `json:"changed"`
	Warnings []string `json:"warnings"`
}

var createBody = map[string]any{
	"matricula":     "1234abc",
	"cliente":       "Ana Pérez",
	"concepto":      "Devolución señal",
	"importe":       "350.00",
	"numero_cuenta": "ES7620770024003102575766",
	"concesion":     1,
}

func (ts *testServer) createAndProcess(t *testing.T) (id, token string) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/extornos", createBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[outcomeBody](t, resp)

	resp = ts.do(t, http.MethodPost, "/api/extornos/"+created.Extorno.ID+"/tramitar", map[string]any{"tramitado_por": "Marta"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	emails := ts.mail.Sent()
	require.NotEmpty(t, emails)
	body := emails[len(emails)-1].TextBody
	_, after, ok := strings.Cut(body, "confirmacion?token=")
	require.True(t, ok)
	token, _, _ = strings.Cut(after, "\n")
	return created.Extorno.ID, token
}

func TestAdminRoutesRequireBearerToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/api/extornos")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/extornos", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestCreateRefund_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/extornos", map[string]any{"cliente": "Ana", "concepto": "x", "importe": "0"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[errorResponse](t, resp)
	assert.Contains(t, body.Fields, "matricula")
	assert.Contains(t, body.Fields, "numero_cuenta")
}

func TestRefundLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	id, token := ts.createAndProcess(t)
	assert.Len(t, token, 64)

	resp := ts.do(t, http.MethodPost, "/api/extornos/"+id+"/tramitar", map[string]any{"tramitado_por": "Marta"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := decodeBody[errorResponse](t, resp)
	assert.Equal(t, domain.EstadoTramitado, errBody.Current)

	resp = ts.do(t, http.MethodPost, "/api/extornos/"+id+"/realizar", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/public/extornos/confirmacion?token="+token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	rec := decodeBody[receipt](t, resp)
	assert.Equal(t, domain.EstadoConfirmado, rec.Estado)

	resp = ts.do(t, http.MethodPost, "/api/public/extornos/confirmacion?token="+token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/extornos/"+id+"/realizar", map[string]any{"justificante_url": "https://files.test/pago.pdf"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decodeBody[outcomeBody](t, resp)
	assert.Equal(t, domain.EstadoRealizado, done.Extorno.Estado)

	resp = ts.do(t, http.MethodGet, "/api/extornos/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "confirmation_token")
}

func TestConfirmationHTMLFlow(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.createAndProcess(t)
	url := ts.srv.URL + "/extornos/confirmacion?token=" + token

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no-referrer", resp.Header.Get("Referrer-Policy"))
	assert.Contains(t, resp.Header.Get("X-Robots-Tag"), "noindex")
	page, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(page), "1234ABC")
	assert.Contains(t, string(page), "350,00 €")
	assert.Contains(t, string(page), `<form method="post"`)
	assert.NotContains(t, string(page), token)

	post, err := http.Post(url, "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	defer post.Body.Close()
	require.Equal(t, http.StatusOK, post.StatusCode)
	receiptPage, _ := io.ReadAll(post.Body)
	assert.Contains(t, string(receiptPage), "Pago Confirmado")

	again, err := http.Get(url)
	require.NoError(t, err)
	defer again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
	notFound, _ := io.ReadAll(again.Body)
	assert.Contains(t, string(notFound), "no es válido")
}

func TestConfirmationAfterRejectIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	id, token := ts.createAndProcess(t)

	resp := ts.do(t, http.MethodPost, "/api/extornos/"+id+"/rechazar", map[string]any{"rechazado_por": "Marta", "motivo": "IBAN"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/public/extornos/confirmacion?token="+token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteOnlyTestRecords(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/extornos", createBody)
	created := decodeBody[outcomeBody](t, resp)
	resp = ts.do(t, http.MethodDelete, "/api/extornos/"+created.Extorno.ID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	testBody := map[string]any{}
	for k, v := range createBody {
		testBody[k] = v
	}
	testBody["is_test"] = true
	resp = ts.do(t, http.MethodPost, "/api/extornos", testBody)
	created = decodeBody[outcomeBody](t, resp)
	resp = ts.do(t, http.MethodDelete, "/api/extornos/"+created.Extorno.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/extornos/"+created.Extorno.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAndCorrect(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/extornos", createBody)
	created := decodeBody[outcomeBody](t, resp)

	resp = ts.do(t, http.MethodPatch, "/api/extornos/"+created.Extorno.ID, map[string]any{"cliente": "Ana María"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/extornos?estado=solicitado&is_test=false", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[struct {
		Extornos []domain.RefundRequest `json:"extornos"`
		Total    int                    `json:"total"`
	}](t, resp)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Ana María", list.Extornos[0].Cliente)

	resp = ts.do(t, http.MethodGet, "/api/extornos?is_test=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func multipartFile(t *testing.T, w *multipart.Writer, name, contentType, content string) {
	t.Helper()
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
}

func TestUploadDocuments(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	multipartFile(t, mw, "dni.pdf", "application/pdf", "%PDF-1.4 dni")
	multipartFile(t, mw, "foto.png", "image/png", "\x89PNG")
	require.NoError(t, mw.Close())

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, ts.srv.URL+"/api/extornos/documentos", &buf)
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[struct {
		Documentos domain.Documentos `json:"documentos"`
	}](t, resp)
	require.Len(t, body.Documentos, 2)
	assert.Equal(t, "dni.pdf", body.Documentos[0].Nombre)

	file, err := http.Get(ts.srv.URL + body.Documentos[0].URL)
	require.NoError(t, err)
	defer file.Body.Close()
	assert.Equal(t, http.StatusOK, file.StatusCode)
	content, _ := io.ReadAll(file.Body)
	assert.Equal(t, "%PDF-1.4 dni", string(content))
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	multipartFile(t, mw, "run.exe", "application/x-msdownload", "MZ")
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/extornos/documentos", &buf)
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEmailConfigEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/admin/extornos-email-config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decodeBody[domain.EmailConfig](t, resp)
	assert.Equal(t, "tramitador@cvo.test", cfg.EmailTramitador)

	resp = ts.do(t, http.MethodPut, "/api/admin/extornos-email-config", map[string]any{
		"enabled":          true,
		"email_tramitador": "nuevo@cvo.test",
		"email_pagador":    "pagos@cvo.test",
		"cc_emails":        []string{"jefe@cvo.test", "jefe@cvo.test"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decodeBody[domain.EmailConfig](t, resp)
	assert.Equal(t, []string{"jefe@cvo.test"}, saved.CCEmails)

	resp = ts.do(t, http.MethodPut, "/api/admin/extornos-email-config", map[string]any{"email_pagador": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/admin/extornos-email-config/repair", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	repair := decodeBody[struct {
		Repaired bool `json:"repaired"`
	}](t, resp)
	assert.False(t, repair.Repaired)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrRefundNotFound, http.StatusNotFound},
		{domain.ErrTokenNotFound, http.StatusNotFound},
		{domain.ErrNotTestRecord, http.StatusForbidden},
		{domain.ErrNotEditable, http.StatusBadRequest},
		{&domain.InvalidTransitionError{Current: domain.EstadoRechazado}, http.StatusBadRequest},
		{&domain.ValidationError{}, http.StatusBadRequest},
		{domain.ErrAttachmentInvalid, http.StatusBadRequest},
		{domain.ErrAttachment, http.StatusInternalServerError},
		{domain.ErrLockTimeout, http.StatusConflict},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}
