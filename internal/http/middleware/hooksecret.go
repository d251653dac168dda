package middleware

import (
	"crypto/subtle"
	"net/http"
)

// HookSecretHeader transporta o segredo compartilhado dos callbacks da
// automação.
const HookSecretHeader = "X-Hook-Secret"

// HookSecret exige o segredo compartilhado nos callbacks públicos.
// Segredo vazio nega tudo: callback sem segredo configurado não fica
// aberto para a internet.
func HookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HookSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "AUTH", "segredo inválido")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
