package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrRefundNotFound    = errors.New("extorno not found")
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrTokenNotFound covers unknown, consumed and invalidated tokens alike.
	ErrTokenNotFound     = errors.New("confirmation token not found")
	ErrDuplicateToken    = errors.New("confirmation token collision")
	ErrNotTestRecord     = errors.New("only test extornos can be deleted")
	ErrNotEditable       = errors.New("extorno can only be corrected while solicitado")
	ErrAttachment        = errors.New("attachment failure")
	ErrAttachmentInvalid = errors.New("attachment rejected")
	ErrNotification      = errors.New("notification failure")
	ErrConfigMissing     = errors.New("email config missing")
	ErrConfigDuplicate   = errors.New("email config has duplicate rows")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockTimeout       = errors.New("lock timeout")
)

type InvalidTransitionError struct {
	Current   Estado
	Attempted Estado
	Action    Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s extorno in estado %q (target %q)", e.Action, e.Current, e.Attempted)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
