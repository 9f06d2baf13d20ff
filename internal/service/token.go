package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"extornos/internal/domain"
	"extornos/internal/metrics"
	"extornos/internal/port"
)

type tokenIssuer struct {
	repo  port.RefundRepository
	bytes int
}

// NewTokenIssuer issues hex tokens of n random bytes (n >= 16).
func NewTokenIssuer(repo port.RefundRepository, n int) port.TokenIssuer {
	if n < 16 {
		n = 16
	}
	return &tokenIssuer{repo: repo, bytes: n}
}

func (t *tokenIssuer) Issue() (string, error) {
	b := make([]byte, t.bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (t *tokenIssuer) WellFormed(token string) bool {
	if len(token) != t.bytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

func (t *tokenIssuer) Consume(ctx context.Context, token string, meta port.ConfirmMeta) (*domain.RefundRequest, error) {
	if !t.WellFormed(token) {
		metrics.TokenRejections.Inc()
		return nil, domain.ErrTokenNotFound
	}
	r, err := t.repo.ConsumeToken(ctx, token, meta)
	if errors.Is(err, domain.ErrTokenNotFound) {
		metrics.TokenRejections.Inc()
	}
	return r, err
}
