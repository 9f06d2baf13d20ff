package http

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"extornos/internal/domain"
	"extornos/internal/notification"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var pageFS embed.FS

var pages = map[string]*template.Template{
	"confirmar": parsePage("confirmar"),
	"recibo":    parsePage("recibo"),
	"no_valido": parsePage("no_valido"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.New("base").ParseFS(pageFS, "templates/base.html", "templates/"+name+".html"))
}

const invalidLinkMessage = "El enlace de confirmación no es válido o ya ha sido utilizado."

type pageView struct {
	Title     string
	Color     string
	Message   string
	Matricula string
	Cliente   string
	Importe   string
	Estado    domain.Estado
	Fecha     string
	IP        string
}

// receipt is the public projection returned after a confirmation.
type receipt struct {
	Matricula         string          `json:"matricula"`
	Cliente           string          `json:"cliente"`
	Importe           decimal.Decimal `json:"importe"`
	Estado            domain.Estado   `json:"estado"`
	FechaConfirmacion *time.Time      `json:"fecha_confirmacion,omitempty"`
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, v pageView) {
	var buf bytes.Buffer
	if err := pages[name].ExecuteTemplate(&buf, "base", v); err != nil {
		h.logger.Error("render page", zap.String("page", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := invalidLinkMessage
	if status == http.StatusInternalServerError {
		h.logger.Error("confirmation failed", zap.Error(err))
		msg = "No se ha podido procesar la confirmación. Inténtelo de nuevo más tarde."
	} else if !errors.Is(err, domain.ErrTokenNotFound) {
		msg = err.Error()
	}
	h.renderPage(w, r, status, "no_valido", pageView{Title: "Enlace no válido", Color: "#e53935", Message: msg})
}

func (h *Handler) confirmationPage(w http.ResponseWriter, r *http.Request) {
	view, err := h.refunds.LookupConfirmation(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.renderFailure(w, r, err)
		return
	}
	h.renderPage(w, r, http.StatusOK, "confirmar", pageView{
		Title:     "Confirmación de Pago",
		Color:     "#16a34a",
		Matricula: view.Matricula,
		Cliente:   view.Cliente,
		Importe:   notification.FormatEuros(view.Importe),
		Estado:    view.Estado,
	})
}

func (h *Handler) confirmationSubmit(w http.ResponseWriter, r *http.Request) {
	out, err := h.refunds.ConfirmRefund(r.Context(), r.URL.Query().Get("token"), clientIP(r))
	if err != nil {
		h.renderFailure(w, r, err)
		return
	}
	ref := out.Refund
	fecha := ""
	if ref.FechaConfirmacion != nil {
		fecha = ref.FechaConfirmacion.Format("02/01/2006 15:04")
	}
	h.renderPage(w, r, http.StatusOK, "recibo", pageView{
		Title:     "Pago Confirmado",
		Color:     "#059669",
		Matricula: ref.Matricula,
		Cliente:   ref.Cliente,
		Importe:   notification.FormatEuros(ref.Importe),
		Estado:    ref.Estado,
		Fecha:     fecha,
		IP:        ref.UltimaIPConfirmacion,
	})
}

func (h *Handler) confirmationLookup(w http.ResponseWriter, r *http.Request) {
	view, err := h.refunds.LookupConfirmation(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) confirmationConfirm(w http.ResponseWriter, r *http.Request) {
	out, err := h.refunds.ConfirmRefund(r.Context(), r.URL.Query().Get("token"), clientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt{
		Matricula:         out.Refund.Matricula,
		Cliente:           out.Refund.Cliente,
		Importe:           out.Refund.Importe,
		Estado:            out.Refund.Estado,
		FechaConfirmacion: out.Refund.FechaConfirmacion,
	})
}
