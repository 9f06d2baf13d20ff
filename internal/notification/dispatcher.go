// Package notification renders extorno emails and hands them to the mailer.
package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"extornos/internal/domain"
	"extornos/internal/mailer"
	"extornos/internal/metrics"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// ConfigSource yields the email config snapshot used for one dispatch.
type ConfigSource interface {
	Current(ctx context.Context) (*domain.EmailConfig, error)
}

type Dispatcher struct {
	mailer    mailer.Service
	configs   ConfigSource
	baseURL   string
	log       *zap.Logger
	templates map[domain.Template]*template.Template
}

type meta struct {
	subject string
	title   string
	heading string
	color   string
}

var metas = map[domain.Template]meta{
	domain.TemplateRegistro:     {"Nuevo extorno registrado", "Nuevo Extorno", "NUEVO EXTORNO", "#0097a7"},
	domain.TemplateTramitacion:  {"Extorno tramitado, pendiente de confirmación", "Extorno Tramitado", "EXTORNO TRAMITADO", "#16a34a"},
	domain.TemplateConfirmacion: {"Pago de extorno confirmado", "Pago Confirmado", "PAGO CONFIRMADO", "#059669"},
	domain.TemplateRechazo:      {"Extorno rechazado", "Extorno Rechazado", "EXTORNO RECHAZADO", "#e53935"},
	domain.TemplateRealizado:    {"Extorno realizado", "Extorno Realizado", "EXTORNO REALIZADO", "#2563eb"},
}

var funcs = template.FuncMap{
	"even":  func(i int) bool { return i%2 == 0 },
	"kb":    formatKB,
	"fecha": formatFechaPtr,
}

func NewDispatcher(m mailer.Service, configs ConfigSource, publicBaseURL string, log *zap.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		mailer:    m,
		configs:   configs,
		baseURL:   strings.TrimRight(publicBaseURL, "/"),
		log:       log,
		templates: make(map[domain.Template]*template.Template, len(metas)),
	}
	for name := range metas {
		t, err := template.New("layout").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+string(name)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		d.templates[name] = t
	}
	return d, nil
}

// ConfirmationLink is the capability URL sent to the pagador.
func (d *Dispatcher) ConfirmationLink(token string) string {
	return d.baseURL + "/extornos/confirmacion?token=" + url.QueryEscape(token)
}

func (d *Dispatcher) Notify(ctx context.Context, t domain.Template, r *domain.RefundRequest) (domain.DispatchResult, error) {
	res := domain.DispatchResult{Template: t}

	cfg, err := d.configs.Current(ctx)
	if err != nil {
		metrics.Notifications.WithLabelValues(string(t), "failed").Inc()
		return res, fmt.Errorf("%w: load email config: %w", domain.ErrNotification, err)
	}
	if !cfg.Enabled {
		res.Skipped = true
		metrics.Notifications.WithLabelValues(string(t), "skipped").Inc()
		d.log.Info("notifications disabled, skipping", zap.String("template", string(t)), zap.String("extorno_id", r.ID.String()))
		return res, nil
	}

	res.To, res.CC = Recipients(t, cfg, r)
	if len(res.To) == 0 && len(res.CC) == 0 {
		res.Skipped = true
		metrics.Notifications.WithLabelValues(string(t), "skipped").Inc()
		d.log.Warn("no recipients for notification", zap.String("template", string(t)), zap.String("extorno_id", r.ID.String()))
		return res, nil
	}

	email, err := d.Render(t, r)
	if err != nil {
		metrics.Notifications.WithLabelValues(string(t), "failed").Inc()
		return res, fmt.Errorf("%w: %w", domain.ErrNotification, err)
	}
	email.To = res.To
	email.Cc = res.CC

	if err := d.mailer.Send(ctx, email); err != nil {
		metrics.Notifications.WithLabelValues(string(t), "failed").Inc()
		return res, fmt.Errorf("%w: send %s: %w", domain.ErrNotification, t, err)
	}

	res.Sent = true
	metrics.Notifications.WithLabelValues(string(t), "sent").Inc()
	d.log.Info("notification sent",
		zap.String("template", string(t)),
		zap.String("extorno_id", r.ID.String()),
		zap.Strings("to", res.To),
		zap.Int("cc", len(res.CC)),
	)
	return res, nil
}

type fila struct {
	Label string
	Value string
	Mono  bool
}

type view struct {
	Title      string
	Heading    string
	Color      string
	Actor      string
	Link       string
	Extorno    *domain.RefundRequest
	Filas      []fila
	Documentos domain.Documentos
}

// Render builds the message for r without recipients. Missing fields render blank.
func (d *Dispatcher) Render(t domain.Template, r *domain.RefundRequest) (mailer.Email, error) {
	tmpl, ok := d.templates[t]
	if !ok {
		return mailer.Email{}, fmt.Errorf("unknown template %q", t)
	}
	m := metas[t]

	v := view{
		Title:      m.title,
		Heading:    m.heading,
		Color:      m.color,
		Extorno:    r,
		Filas:      filas(r),
		Documentos: append(append(domain.Documentos{}, r.DocumentosAdjuntos...), r.DocumentosTramitacion...),
	}
	switch t {
	case domain.TemplateRegistro:
		v.Actor = r.SolicitadoPor
	case domain.TemplateTramitacion:
		v.Actor = r.TramitadoPor
		if r.ConfirmationToken != "" {
			v.Link = d.ConfirmationLink(r.ConfirmationToken)
		}
	case domain.TemplateRechazo:
		v.Actor = r.RechazadoPor
	case domain.TemplateRealizado:
		v.Link = r.JustificanteURL
	}
	if v.Actor == "" {
		v.Actor = "El sistema"
	}

	var html bytes.Buffer
	if err := tmpl.ExecuteTemplate(&html, "layout", v); err != nil {
		return mailer.Email{}, fmt.Errorf("render %s: %w", t, err)
	}

	subject := m.subject + " - " + r.Matricula
	if r.IsTest {
		subject = "[PRUEBA] " + subject
	}

	return mailer.Email{
		Subject:  subject,
		HTMLBody: html.String(),
		TextBody: textBody(m, v),
	}, nil
}

func filas(r *domain.RefundRequest) []fila {
	cliente := r.Cliente
	if r.NumeroCliente != "" {
		cliente += " (" + r.NumeroCliente + ")"
	}
	return []fila{
		{Label: "Fecha solicitud", Value: formatFecha(r.FechaSolicitud)},
		{Label: "Matrícula", Value: r.Matricula},
		{Label: "Cliente", Value: cliente},
		{Label: "Concepto", Value: r.Concepto},
		{Label: "Importe", Value: FormatEuros(r.Importe)},
		{Label: "Número de cuenta", Value: r.NumeroCuenta, Mono: true},
		{Label: "Concesión", Value: concesionName(r.Concesion)},
		{Label: "Estado", Value: string(r.Estado)},
	}
}

func textBody(m meta, v view) string {
	var b strings.Builder
	b.WriteString(m.heading + "\n\n")
	for _, f := range v.Filas {
		fmt.Fprintf(&b, "%s: %s\n", f.Label, f.Value)
	}
	if v.Extorno.MotivoRechazo != "" {
		fmt.Fprintf(&b, "Motivo del rechazo: %s\n", v.Extorno.MotivoRechazo)
	}
	for _, doc := range v.Documentos {
		fmt.Fprintf(&b, "Documento: %s %s\n", doc.Nombre, doc.URL)
	}
	if v.Link != "" {
		fmt.Fprintf(&b, "\n%s\n", v.Link)
	}
	b.WriteString("\nEste es un mensaje automático, por favor no responda a este email.\n")
	return b.String()
}

// Recipients resolves To and Cc for a template. Empty and repeated addresses
// are dropped, and nobody in To is copied again in Cc.
func Recipients(t domain.Template, cfg *domain.EmailConfig, r *domain.RefundRequest) (to, cc []string) {
	candidates := []string{r.SolicitadoPorEmail, cfg.EmailTramitador}
	if t != domain.TemplateRegistro {
		candidates = append(candidates, cfg.EmailPagador)
	}
	seen := map[string]bool{}
	to = dedupe(candidates, seen)
	cc = dedupe(cfg.CCEmails, seen)
	return to, cc
}

func dedupe(in []string, seen map[string]bool) []string {
	var out []string
	for _, e := range in {
		e = strings.TrimSpace(e)
		key := strings.ToLower(e)
		if e == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
