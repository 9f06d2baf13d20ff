package domain

import (
	"strings"
	"time"
)

type EmailConfig struct {
	Enabled         bool      `json:"enabled"`
	EmailTramitador string    `json:"email_tramitador" validate:"omitempty,email"`
	EmailPagador    string    `json:"email_pagador" validate:"omitempty,email"`
	CCEmails        []string  `json:"cc_emails" validate:"dive,email"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Normalize trims addresses and removes empty and duplicate cc entries.
func (c *EmailConfig) Normalize() {
	c.EmailTramitador = strings.TrimSpace(c.EmailTramitador)
	c.EmailPagador = strings.TrimSpace(c.EmailPagador)
	seen := make(map[string]bool, len(c.CCEmails))
	cc := make([]string, 0, len(c.CCEmails))
	for _, e := range c.CCEmails {
		e = strings.TrimSpace(e)
		key := strings.ToLower(e)
		if e == "" || seen[key] {
			continue
		}
		seen[key] = true
		cc = append(cc, e)
	}
	c.CCEmails = cc
}

// RepairReport describes what a collapse of the config table did.
type RepairReport struct {
	RowsFound   int         `json:"rows_found"`
	RowsRemoved int         `json:"rows_removed"`
	Seeded      bool        `json:"seeded"`
	Config      EmailConfig `json:"config"`
}

func (r RepairReport) Repaired() bool {
	return r.RowsRemoved > 0 || r.Seeded
}

// Latest picks the most recently written config; ties keep the earlier index.
func Latest(rows []EmailConfig) EmailConfig {
	best := rows[0]
	for _, r := range rows[1:] {
		if r.UpdatedAt.After(best.UpdatedAt) {
			best = r
		}
	}
	return best
}

type Template string

const (
	TemplateRegistro     Template = "registro"
	TemplateTramitacion  Template = "tramitacion"
	TemplateConfirmacion Template = "confirmacion"
	TemplateRechazo      Template = "rechazo"
	TemplateRealizado    Template = "realizado"
)

type DispatchResult struct {
	Template Template `json:"template"`
	Sent     bool     `json:"sent"`
	Skipped  bool     `json:"skipped,omitempty"`
	To       []string `json:"to,omitempty"`
	CC       []string `json:"cc,omitempty"`
}
