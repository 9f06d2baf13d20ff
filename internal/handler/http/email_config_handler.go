package http

import (
	"net/http"

	"extornos/internal/domain"
)

func (h *Handler) getEmailConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.Current(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) updateEmailConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.EmailConfig
	if err := h.decode(r, &cfg); err != nil {
		h.writeError(w, r, err)
		return
	}
	cfg.Normalize()
	if err := h.check(&cfg); err != nil {
		h.writeError(w, r, err)
		return
	}

	saved, err := h.configs.Update(r.Context(), &cfg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) repairEmailConfig(w http.ResponseWriter, r *http.Request) {
	report, err := h.configs.Repair(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repaired": report.Repaired(),
		"report":   report,
	})
}
