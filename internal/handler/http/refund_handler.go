package http

import (
	"net/http"
	"strconv"

	"extornos/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *Handler) refundID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.ErrRefundNotFound
	}
	return id, nil
}

func (h *Handler) createRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRefundReq
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.refunds.CreateRefund(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) listRefunds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.RefundFilter{Estado: domain.Estado(q.Get("estado"))}
	if v := q.Get("is_test"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, &domain.ValidationError{Fields: map[string]string{"is_test": "must be a boolean"}})
			return
		}
		f.IsTest = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, r, &domain.ValidationError{Fields: map[string]string{"limit": "must be a positive integer"}})
			return
		}
		f.Limit = n
	}

	items, err := h.refunds.ListRefunds(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"extornos": items, "total": len(items)})
}

func (h *Handler) getRefund(w http.ResponseWriter, r *http.Request) {
	id, err := h.refundID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	refund, err := h.refunds.GetRefund(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refund)
}

func (h *Handler) correctRefund(w http.ResponseWriter, r *http.Request) {
	id, err := h.refundID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var c domain.RefundCorrection
	if err := h.decode(r, &c); err != nil {
		h.writeError(w, r, err)
		return
	}

	refund, err := h.refunds.CorrectRefund(r.Context(), id, c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refund)
}

func (h *Handler) processRefund(w http.ResponseWriter, r *http.Request) {
	id, err := h.refundID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req domain.ProcessRefundReq
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.refunds.ProcessRefund(r.Context(), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) rejectRefund(w http.ResponseWriter, r *http.Request) {
	id, err := h.refundID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req domain.RejectRefundReq
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.refunds.RejectRefund(r.Context(), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) completeRefund(w http.ResponseWriter, r *http.Request) {
	id, err := h.refundID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req domain.CompleteRefundReq
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := h.check(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.refunds.CompleteRefund(r.Context(), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) deleteRefund(w http.ResponseWriter, r *http.Request) {
	id, err := h.refundID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.refunds.DeleteRefund(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
