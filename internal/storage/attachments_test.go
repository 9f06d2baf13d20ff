package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extornos/internal/config"
	"extornos/internal/domain"
	"extornos/internal/port"
)

func newLocalAttachments(t *testing.T) (*Attachments, string) {
	t.Helper()
	dir := t.TempDir()
	return NewAttachments(NewLocal(dir, "https://files.example.com/extornos/"), 1<<20), dir
}

func TestUploadAndDelete(t *testing.T) {
	a, dir := newLocalAttachments(t)
	ctx := context.Background()

	doc, err := a.Upload(ctx, strings.NewReader("%PDF-1.4"), port.UploadInput{
		Filename: "../../justificante.pdf", ContentType: "application/pdf", Size: 8,
	})
	require.NoError(t, err)

	assert.Equal(t, "justificante.pdf", doc.Nombre)
	assert.Equal(t, "application/pdf", doc.Tipo)
	assert.EqualValues(t, 8, doc.Tamano)
	assert.True(t, strings.HasPrefix(doc.URL, "https://files.example.com/extornos/extorno-"))
	assert.True(t, strings.HasSuffix(doc.URL, ".pdf"))

	key := strings.TrimPrefix(doc.URL, "https://files.example.com/extornos/")
	_, err = os.Stat(filepath.Join(dir, key))
	require.NoError(t, err)

	require.NoError(t, a.Delete(ctx, doc.URL))
	_, err = os.Stat(filepath.Join(dir, key))
	assert.True(t, os.IsNotExist(err))
}

func TestUploadPolicy(t *testing.T) {
	a, _ := newLocalAttachments(t)
	ctx := context.Background()

	_, err := a.Upload(ctx, strings.NewReader("x"), port.UploadInput{Filename: "a.exe", ContentType: "application/x-msdownload", Size: 1})
	assert.ErrorIs(t, err, domain.ErrAttachmentInvalid)

	_, err = a.Upload(ctx, strings.NewReader("x"), port.UploadInput{Filename: "big.pdf", ContentType: "application/pdf", Size: 2 << 20})
	assert.ErrorIs(t, err, domain.ErrAttachmentInvalid)

	_, err = a.Upload(ctx, strings.NewReader(""), port.UploadInput{Filename: "empty.pdf", ContentType: "application/pdf", Size: 0})
	assert.ErrorIs(t, err, domain.ErrAttachmentInvalid)
}

func TestBatchDeleteIsBestEffort(t *testing.T) {
	a, _ := newLocalAttachments(t)
	ctx := context.Background()

	first, err := a.Upload(ctx, strings.NewReader("a"), port.UploadInput{Filename: "a.txt", ContentType: "text/plain", Size: 1})
	require.NoError(t, err)
	second, err := a.Upload(ctx, strings.NewReader("b"), port.UploadInput{Filename: "b.txt", ContentType: "text/plain", Size: 1})
	require.NoError(t, err)

	err = a.Delete(ctx, first.URL, "https://elsewhere.example.com/x.pdf", second.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAttachment)

	// both managed files are gone despite the foreign url in between
	assert.NoError(t, a.Delete(ctx))
	assert.Error(t, a.Delete(ctx, first.URL))
	assert.Error(t, a.Delete(ctx, second.URL))
}

func TestFactory(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Driver: "local", LocalDir: t.TempDir(), LocalURLPrefix: "/u"})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	_, err = New(context.Background(), config.StorageConfig{Driver: "s3"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}
