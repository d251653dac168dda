package util

import "testing"

func TestValidateWhatsAppBoundaries(t *testing.T) {
	cases := []struct {
		numero string
		ok     bool
	}{
		{"123456789", false},
		{"1234567890", true},
		{"11987654321", true},
		{"5511987654321", true},
		{"55119876543210", false},
		{"(11) 98765-4321", true},
		{"+55 11 98765-4321", true},
		{"", false},
	}

	for _, tc := range cases {
		err := ValidateWhatsApp(tc.numero)
		if tc.ok && err != nil {
			t.Errorf("ValidateWhatsApp(%q) = %v, esperava válido", tc.numero, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ValidateWhatsApp(%q) aceitou número inválido", tc.numero)
		}
	}
}

func TestNormalizeWhatsApp(t *testing.T) {
	if got := NormalizeWhatsApp("+55 (11) 98765-4321"); got != "5511987654321" {
		t.Errorf("NormalizeWhatsApp = %q", got)
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("nutri@exemplo.com.br"); err != nil {
		t.Errorf("email válido rejeitado: %v", err)
	}
	if err := ValidateEmail("apenas-texto"); err == nil {
		t.Error("email inválido aceito")
	}
	if err := ValidateEmail("  "); err == nil {
		t.Error("email vazio aceito")
	}
}
