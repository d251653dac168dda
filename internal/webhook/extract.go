package webhook

import "strings"

// Campos onde as automações costumam devolver o QR code; a grafia varia
// entre versões dos fluxos.
var qrFields = []string{"qrcode", "qr_code", "qrCode", "base64", "code", "qr"}

// ExtractQRCode procura um payload de QR code nas respostas, tolerando
// nomes de campo diferentes e corpo em texto puro.
func ExtractQRCode(res Result) (string, bool) {
	for _, o := range res.Outcomes {
		if !o.OK() {
			continue
		}
		if o.JSON != nil {
			for _, field := range qrFields {
				if val, ok := o.JSON[field].(string); ok && strings.TrimSpace(val) != "" {
					return strings.TrimSpace(val), true
				}
			}
			continue
		}
		body := strings.TrimSpace(o.Body)
		if looksLikeQRPayload(body) {
			return body, true
		}
	}
	return "", false
}

func looksLikeQRPayload(body string) bool {
	if body == "" {
		return false
	}
	return strings.HasPrefix(body, "data:image/") || len(body) > 100
}

// ExtractConnectionStatus normaliza a resposta de status do WhatsApp
// para o vocabulário fixo "conectado"/"desconectado". Tolera variação
// de caixa, espaços e grafias comuns nos fluxos de automação.
func ExtractConnectionStatus(res Result) (string, bool) {
	for _, o := range res.Outcomes {
		if !o.OK() {
			continue
		}
		candidates := []string{o.Body}
		if o.JSON != nil {
			candidates = candidates[:0]
			for _, field := range []string{"status", "state", "connection", "conexao"} {
				if val, ok := o.JSON[field].(string); ok {
					candidates = append(candidates, val)
				}
			}
		}
		for _, c := range candidates {
			if status, ok := normalizeStatus(c); ok {
				return status, true
			}
		}
	}
	return "", false
}

func normalizeStatus(raw string) (string, bool) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.ReplaceAll(norm, " ", "")

	// "desconectado"/"disconnected" e as grafias tortas que os fluxos
	// já produziram ("desconect", "desconnected").
	if strings.Contains(norm, "desconect") || strings.Contains(norm, "disconnect") {
		return "desconectado", true
	}
	if strings.Contains(norm, "conect") || strings.Contains(norm, "connect") {
		return "conectado", true
	}
	return "", false
}
