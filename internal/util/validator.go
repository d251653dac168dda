package util

import (
	"errors"
	"net/mail"
	"strings"
)

// ValidateEmail retorna erro para e-mails inválidos.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email obrigatório")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("email inválido")
	}
	return nil
}

// ValidatePassword verifica requisitos mínimos de senha.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("senha deve ter pelo menos 8 caracteres")
	}
	return nil
}

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obrigatório")
	}
	return nil
}

// NormalizeWhatsApp remove tudo que não for dígito do número informado.
func NormalizeWhatsApp(numero string) string {
	var b strings.Builder
	for _, r := range numero {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateWhatsApp aceita números com 10 a 13 dígitos (DDD + número,
// com ou sem código do país).
func ValidateWhatsApp(numero string) error {
	digits := NormalizeWhatsApp(numero)
	if len(digits) < 10 || len(digits) > 13 {
		return errors.New("número de WhatsApp inválido")
	}
	return nil
}
