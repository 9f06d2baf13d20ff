package http

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"extornos/internal/domain"
	"extornos/internal/port"

	"go.uber.org/zap"
)

const uploadField = "files"

// uploadDocuments stores every file of a multipart request and returns their
// metadata. A failure removes the files already stored by the same request.
func (h *Handler) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	limit := h.opts.MaxUploadSize*int64(h.opts.MaxFiles) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, fmt.Errorf("%w: request exceeds %d bytes", domain.ErrAttachmentInvalid, limit))
			return
		}
		h.writeError(w, r, &domain.ValidationError{Fields: map[string]string{uploadField: "multipart form required"}})
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[uploadField]
	switch {
	case len(files) == 0:
		h.writeError(w, r, &domain.ValidationError{Fields: map[string]string{uploadField: "required"}})
		return
	case len(files) > h.opts.MaxFiles:
		h.writeError(w, r, fmt.Errorf("%w: at most %d files per request", domain.ErrAttachmentInvalid, h.opts.MaxFiles))
		return
	}

	docs := make(domain.Documentos, 0, len(files))
	for _, fh := range files {
		contentType, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
		if err != nil {
			contentType = "application/octet-stream"
		}

		f, err := fh.Open()
		if err != nil {
			h.rollbackUploads(r, docs)
			h.writeError(w, r, fmt.Errorf("%w: %v", domain.ErrAttachment, err))
			return
		}
		doc, err := h.uploads.Upload(r.Context(), f, port.UploadInput{
			Filename:    fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
		})
		f.Close()
		if err != nil {
			h.rollbackUploads(r, docs)
			h.writeError(w, r, err)
			return
		}
		docs = append(docs, doc)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"documentos": docs})
}

func (h *Handler) rollbackUploads(r *http.Request, docs domain.Documentos) {
	if len(docs) == 0 {
		return
	}
	if err := h.uploads.Delete(r.Context(), docs.URLs()...); err != nil {
		h.logger.Warn("upload rollback incomplete", zap.Strings("urls", docs.URLs()), zap.Error(err))
	}
}
