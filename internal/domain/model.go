package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Documento struct {
	Nombre   string    `json:"nombre"`
	URL      string    `json:"url"`
	Tipo     string    `json:"tipo"`
	Tamano   int64     `json:"tamaño"`
	SubidoEn time.Time `json:"subido_en,omitempty"`
}

// Documentos is stored as a JSON array (jsonb in postgres).
type Documentos []Documento

func (d Documentos) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Documentos) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = Documentos{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("documentos: unsupported scan type")
	}
	out := Documentos{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*d = out
	return nil
}

func (d Documentos) URLs() []string {
	urls := make([]string, 0, len(d))
	for _, doc := range d {
		if doc.URL != "" {
			urls = append(urls, doc.URL)
		}
	}
	return urls
}

type RefundRequest struct {
	ID            uuid.UUID       `json:"id"`
	Matricula     string          `json:"matricula"`
	Cliente       string          `json:"cliente"`
	NumeroCliente string          `json:"numero_cliente,omitempty"`
	Concepto      string          `json:"concepto"`
	Importe       decimal.Decimal `json:"importe"`
	NumeroCuenta  string          `json:"numero_cuenta"`
	Concesion     int             `json:"concesion"`
	Estado        Estado          `json:"estado"`

	// ConfirmationToken is only set while Estado == EstadoTramitado.
	ConfirmationToken string `json:"-"`
	IsTest            bool   `json:"is_test"`

	DocumentosAdjuntos    Documentos `json:"documentos_adjuntos"`
	DocumentosTramitacion Documentos `json:"documentos_tramitacion"`

	JustificanteURL    string `json:"justificante_url,omitempty"`
	JustificanteNombre string `json:"justificante_nombre,omitempty"`

	SolicitadoPor        string `json:"solicitado_por,omitempty"`
	SolicitadoPorEmail   string `json:"solicitado_por_email,omitempty"`
	TramitadoPor         string `json:"tramitado_por,omitempty"`
	RechazadoPor         string `json:"rechazado_por,omitempty"`
	MotivoRechazo        string `json:"motivo_rechazo,omitempty"`
	UltimaIPConfirmacion string `json:"ultima_ip_confirmacion,omitempty"`

	FechaSolicitud    time.Time  `json:"fecha_solicitud"`
	FechaTramitacion  *time.Time `json:"fecha_tramitacion,omitempty"`
	FechaConfirmacion *time.Time `json:"fecha_confirmacion,omitempty"`
	FechaRechazo      *time.Time `json:"fecha_rechazo,omitempty"`
	FechaRealizacion  *time.Time `json:"fecha_realizacion,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// storedRefund mirrors RefundRequest for persistence, where the token must
// survive serialization.
type storedRefund struct {
	RefundRequest
	ConfirmationToken string `json:"confirmation_token,omitempty"`
}

// MarshalStored encodes the record including its confirmation token.
func (r *RefundRequest) MarshalStored() ([]byte, error) {
	return json.Marshal(storedRefund{RefundRequest: *r, ConfirmationToken: r.ConfirmationToken})
}

func UnmarshalStored(data []byte) (*RefundRequest, error) {
	var s storedRefund
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	r := s.RefundRequest
	r.ConfirmationToken = s.ConfirmationToken
	return &r, nil
}

// Validate checks the fields required at creation time.
func (r *RefundRequest) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(r.Matricula) == "" {
		fields["matricula"] = "required"
	}
	if strings.TrimSpace(r.NumeroCuenta) == "" {
		fields["numero_cuenta"] = "required"
	}
	if !r.Importe.IsPositive() {
		fields["importe"] = "must be greater than zero"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *RefundRequest) Clone() *RefundRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.DocumentosAdjuntos = append(Documentos{}, r.DocumentosAdjuntos...)
	c.DocumentosTramitacion = append(Documentos{}, r.DocumentosTramitacion...)
	c.FechaTramitacion = copyTime(r.FechaTramitacion)
	c.FechaConfirmacion = copyTime(r.FechaConfirmacion)
	c.FechaRechazo = copyTime(r.FechaRechazo)
	c.FechaRealizacion = copyTime(r.FechaRealizacion)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// AttachmentURLs returns every stored document URL, including the justificante.
func (r *RefundRequest) AttachmentURLs() []string {
	urls := append(r.DocumentosAdjuntos.URLs(), r.DocumentosTramitacion.URLs()...)
	if r.JustificanteURL != "" {
		urls = append(urls, r.JustificanteURL)
	}
	return urls
}

type ConfirmationView struct {
	Matricula string          `json:"matricula"`
	Cliente   string          `json:"cliente"`
	Importe   decimal.Decimal `json:"importe"`
	Estado    Estado          `json:"estado"`
}

func (r *RefundRequest) ConfirmationView() ConfirmationView {
	return ConfirmationView{
		Matricula: r.Matricula,
		Cliente:   r.Cliente,
		Importe:   r.Importe,
		Estado:    r.Estado,
	}
}

type RefundFilter struct {
	Estado Estado
	IsTest *bool
	Limit  int
}

func (f RefundFilter) Match(r *RefundRequest) bool {
	if f.Estado != "" && r.Estado != f.Estado {
		return false
	}
	if f.IsTest != nil && r.IsTest != *f.IsTest {
		return false
	}
	return true
}

// Mutable descriptive fields; nil means unchanged.
type RefundCorrection struct {
	Matricula     *string          `json:"matricula"`
	Cliente       *string          `json:"cliente"`
	NumeroCliente *string          `json:"numero_cliente"`
	Concepto      *string          `json:"concepto"`
	Importe       *decimal.Decimal `json:"importe"`
	NumeroCuenta  *string          `json:"numero_cuenta"`
	Concesion     *int             `json:"concesion"`
}

func (c RefundCorrection) Apply(r *RefundRequest) {
	if c.Matricula != nil {
		r.Matricula = strings.ToUpper(strings.TrimSpace(*c.Matricula))
	}
	if c.Cliente != nil {
		r.Cliente = *c.Cliente
	}
	if c.NumeroCliente != nil {
		r.NumeroCliente = *c.NumeroCliente
	}
	if c.Concepto != nil {
		r.Concepto = *c.Concepto
	}
	if c.Importe != nil {
		r.Importe = *c.Importe
	}
	if c.NumeroCuenta != nil {
		r.NumeroCuenta = *c.NumeroCuenta
	}
	if c.Concesion != nil {
		r.Concesion = *c.Concesion
	}
}

type CreateRefundReq struct {
	Matricula          string          `json:"matricula" validate:"required"`
	Cliente            string          `json:"cliente" validate:"required"`
	NumeroCliente      string          `json:"numero_cliente"`
	Concepto           string          `json:"concepto" validate:"required"`
	Importe            decimal.Decimal `json:"importe"`
	NumeroCuenta       string          `json:"numero_cuenta" validate:"required"`
	Concesion          int             `json:"concesion" validate:"gte=0"`
	IsTest             bool            `json:"is_test"`
	SolicitadoPor      string          `json:"solicitado_por"`
	SolicitadoPorEmail string          `json:"solicitado_por_email" validate:"omitempty,email"`
	DocumentosAdjuntos Documentos      `json:"documentos_adjuntos" validate:"max=10,dive"`
}

type ProcessRefundReq struct {
	TramitadoPor          string     `json:"tramitado_por" validate:"required"`
	DocumentosTramitacion Documentos `json:"documentos_tramitacion" validate:"max=10,dive"`
}

type RejectRefundReq struct {
	RechazadoPor string `json:"rechazado_por" validate:"required"`
	Motivo       string `json:"motivo"`
}

type CompleteRefundReq struct {
	JustificanteURL    string `json:"justificante_url" validate:"omitempty,url"`
	JustificanteNombre string `json:"justificante_nombre"`
}

// Outcome is the result of a committed transition. Warnings carry side-effect
// failures (notification, storage cleanup) that did not affect the commit.
type Outcome struct {
	Refund   *RefundRequest `json:"extorno"`
	Changed  bool           `json:"changed"`
	Notified bool           `json:"notified"`
	Warnings []string       `json:"warnings,omitempty"`
}

func (o *Outcome) Warn(err error) {
	if err != nil {
		o.Warnings = append(o.Warnings, err.Error())
	}
}
