package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nutrimatic/plataforma/internal/auth"
	"github.com/nutrimatic/plataforma/internal/config"
	httpmiddleware "github.com/nutrimatic/plataforma/internal/http/middleware"
	"github.com/nutrimatic/plataforma/internal/service"
)

func newTestRouter(t *testing.T) (http.Handler, *auth.JWTManager) {
	t.Helper()

	cfg := &config.Config{
		Port:            8080,
		JWTSecret:       "segredo-de-teste-com-mais-de-32-caracteres",
		JWTAccessTTL:    time.Minute,
		JWTRefreshTTL:   time.Hour,
		AllowOrigins:    []string{"http://localhost:3000"},
		CacheFreshness:  5 * time.Minute,
		SessionTimeout:  time.Second,
		RateLimitPublic: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		RateLimitAuth:   config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		Webhooks:        config.WebhookConfig{Timeout: time.Second, QueueSize: 4, Secret: "segredo-hook"},
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	authService := service.NewAuthService(nil, nil, nil, jwtManager, cfg.JWTRefreshTTL)

	handler, cleanup, err := NewRouter(cfg, nil, nil, authService, nil)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	t.Cleanup(cleanup)

	return handler, jwtManager
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, esperado 200", rec.Code)
	}

	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("json: %v", err)
	}
	if envelope.Data["status"] != "ok" {
		t.Fatalf("data = %v", envelope.Data)
	}
}

func TestReadyReportsDegradedWithoutBackend(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, esperado 200", rec.Code)
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("json: %v", err)
	}
	if envelope.Data["degradado"] != true {
		t.Fatalf("esperado modo degradado, data = %v", envelope.Data)
	}
}

func TestPrivateRoutesRequireToken(t *testing.T) {
	handler, _ := newTestRouter(t)

	for _, path := range []string{"/me", "/clientes", "/receitas", "/prescricoes", "/agenda", "/secretaria"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s sem token: status = %d, esperado 401", path, rec.Code)
		}
	}
}

func TestListWithValidTokenDegradesToEmptySnapshot(t *testing.T) {
	handler, jwtManager := newTestRouter(t)

	subject := uuid.New()
	token, _, err := jwtManager.GenerateAccessToken(subject.String(), service.Audience, nil)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/clientes", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, esperado 200, corpo %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data struct {
			Clientes  []any `json:"clientes"`
			Carregada bool  `json:"carregada"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !envelope.Data.Carregada {
		t.Fatal("snapshot degradado deveria vir inicializado")
	}
	if len(envelope.Data.Clientes) != 0 {
		t.Fatalf("esperada lista vazia, veio %d", len(envelope.Data.Clientes))
	}
}

func TestLoginValidatesPayload(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, esperado 400", rec.Code)
	}
}

func TestLoginWithoutBackendIsUnavailable(t *testing.T) {
	handler, _ := newTestRouter(t)

	body := strings.NewReader(`{"email":"helena@exemplo.com","senha":"segredo"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, esperado 503", rec.Code)
	}
}

func TestHookIngestRequiresSharedSecret(t *testing.T) {
	handler, _ := newTestRouter(t)
	body := `{"identificacao":"` + uuid.NewString() + `","nome":"Sopa de legumes","url":"http://cdn/receitas/1.pdf"}`

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hooks/receitas", strings.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("sem segredo: status = %d, esperado 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hooks/receitas", strings.NewReader(body))
	req.Header.Set(httpmiddleware.HookSecretHeader, "segredo-errado")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("segredo errado: status = %d, esperado 401", rec.Code)
	}

	// Com o segredo certo a requisição passa da autenticação; sem
	// backend o serviço responde indisponível em vez de gravar.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/hooks/receitas", strings.NewReader(body))
	req.Header.Set(httpmiddleware.HookSecretHeader, "segredo-hook")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("segredo certo sem backend: status = %d, esperado 503, corpo %s", rec.Code, rec.Body.String())
	}
}
