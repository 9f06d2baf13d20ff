package http

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"extornos/internal/port"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Options struct {
	AuthToken      string
	RequestTimeout time.Duration
	MaxUploadSize  int64
	MaxFiles       int
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Files serves locally stored attachments under FilesPath when set.
	Files     http.Handler
	FilesPath string
}

type Handler struct {
	refunds   port.RefundService
	configs   port.EmailConfigService
	uploads   port.AttachmentStore
	validate  *validator.Validate
	authToken string
	logger    *zap.Logger
	opts      Options
}

func NewHandler(
	refunds port.RefundService,
	configs port.EmailConfigService,
	uploads port.AttachmentStore,
	logger *zap.Logger,
	opts Options,
) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 10
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 10 << 20
	}

	return &Handler{
		refunds:   refunds,
		configs:   configs,
		uploads:   uploads,
		validate:  v,
		authToken: opts.AuthToken,
		logger:    logger.Named("http"),
		opts:      opts,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)
	if h.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(h.opts.RequestTimeout))
	}

	r.Get("/health", h.health)
	if h.opts.Metrics != nil {
		r.Handle("/metrics", h.opts.Metrics)
	}
	if h.opts.Files != nil && h.opts.FilesPath != "" {
		r.Handle(strings.TrimRight(h.opts.FilesPath, "/")+"/*", http.StripPrefix(h.opts.FilesPath, h.opts.Files))
	}

	r.Route("/extornos/confirmacion", func(r chi.Router) {
		r.Use(noLeak)
		r.Get("/", h.confirmationPage)
		r.Post("/", h.confirmationSubmit)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/public/extornos/confirmacion", func(r chi.Router) {
			r.Use(noLeak)
			r.Get("/", h.confirmationLookup)
			r.Post("/", h.confirmationConfirm)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Route("/extornos", func(r chi.Router) {
				r.Post("/", h.createRefund)
				r.Get("/", h.listRefunds)
				r.Post("/documentos", h.uploadDocuments)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.getRefund)
					r.Patch("/", h.correctRefund)
					r.Delete("/", h.deleteRefund)
					r.Post("/tramitar", h.processRefund)
					r.Post("/rechazar", h.rejectRefund)
					r.Post("/realizar", h.completeRefund)
				})
			})

			r.Route("/admin/extornos-email-config", func(r chi.Router) {
				r.Get("/", h.getEmailConfig)
				r.Put("/", h.updateEmailConfig)
				r.Post("/repair", h.repairEmailConfig)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
