package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"extornos/internal/domain"
	"extornos/internal/port"
)

var AllowedTypes = map[string]bool{
	"application/pdf":    true,
	"image/jpeg":         true,
	"image/jpg":          true,
	"image/png":          true,
	"image/gif":          true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/plain": true,
	"text/csv":   true,
}

// Attachments enforces the upload policy on top of a blob backend.
type Attachments struct {
	backend Storage
	maxSize int64
	now     func() time.Time
}

func NewAttachments(backend Storage, maxSize int64) *Attachments {
	return &Attachments{backend: backend, maxSize: maxSize, now: time.Now}
}

var _ port.AttachmentStore = (*Attachments)(nil)

func (a *Attachments) Upload(ctx context.Context, r io.Reader, in port.UploadInput) (domain.Documento, error) {
	if in.Size <= 0 {
		return domain.Documento{}, fmt.Errorf("%w: empty file", domain.ErrAttachmentInvalid)
	}
	if a.maxSize > 0 && in.Size > a.maxSize {
		return domain.Documento{}, fmt.Errorf("%w: %.2fMB exceeds the %.1fMB limit",
			domain.ErrAttachmentInvalid, float64(in.Size)/(1<<20), float64(a.maxSize)/(1<<20))
	}
	if !AllowedTypes[in.ContentType] {
		return domain.Documento{}, fmt.Errorf("%w: content type %q not allowed", domain.ErrAttachmentInvalid, in.ContentType)
	}

	// Guard against a body longer than the declared size.
	body := r
	if a.maxSize > 0 {
		body = io.LimitReader(r, a.maxSize+1)
	}

	res, err := a.backend.Put(ctx, body, PutInput{Filename: in.Filename, ContentType: in.ContentType, Size: in.Size})
	if err != nil {
		return domain.Documento{}, fmt.Errorf("%w: %v", domain.ErrAttachment, err)
	}

	return domain.Documento{
		Nombre:   filepath.Base(in.Filename),
		URL:      res.URL,
		Tipo:     in.ContentType,
		Tamano:   in.Size,
		SubidoEn: a.now().UTC(),
	}, nil
}

func (a *Attachments) Delete(ctx context.Context, urls ...string) error {
	var errs []error
	for _, u := range urls {
		key, ok := a.backend.KeyFromURL(u)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: url %q not managed by this store", domain.ErrAttachment, u))
			continue
		}
		if err := a.backend.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%w: delete %q: %v", domain.ErrAttachment, u, err))
		}
	}
	return errors.Join(errs...)
}
