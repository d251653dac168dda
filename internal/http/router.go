package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/nutrimatic/plataforma/internal/agenda"
	"github.com/nutrimatic/plataforma/internal/cache"
	"github.com/nutrimatic/plataforma/internal/cliente"
	"github.com/nutrimatic/plataforma/internal/config"
	httpmiddleware "github.com/nutrimatic/plataforma/internal/http/middleware"
	"github.com/nutrimatic/plataforma/internal/nutricionista"
	"github.com/nutrimatic/plataforma/internal/prescricao"
	"github.com/nutrimatic/plataforma/internal/realtime"
	"github.com/nutrimatic/plataforma/internal/receita"
	"github.com/nutrimatic/plataforma/internal/secretaria"
	"github.com/nutrimatic/plataforma/internal/service"
	"github.com/nutrimatic/plataforma/internal/webhook"
)

type Handler struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	redis         *redis.Client
	authService   *service.AuthService
	feed          *realtime.Feed
	toasts        *toastHub
	queue         *webhook.BestEffort
	receitas      *receita.Service
	prescricoes   *prescricao.Service
	clientes      *cliente.Service
	eventos       *agenda.Service
	secretarias   *secretaria.Service
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	devCookies    bool
}

// NewRouter devolve o roteador configurado e uma função de cleanup
// que drena os workers de webhook e encerra as assinaturas do feed.
func NewRouter(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, authService *service.AuthService, feed *realtime.Feed) (http.Handler, func(), error) {
	devCookies := false
	for _, origin := range cfg.AllowOrigins {
		if strings.Contains(origin, "localhost") {
			devCookies = true
			break
		}
	}

	logger := log.With().Str("component", "http").Logger()

	var cacheStore *cache.Store
	if redisClient != nil {
		cacheStore = cache.New(redisClient, cfg.CacheFreshness)
	}

	dispatcher := webhook.NewDispatcher(cfg.Webhooks.Timeout, log.With().Str("component", "webhook").Logger())
	queue := webhook.NewBestEffort(dispatcher, cfg.Webhooks.QueueSize, cfg.Webhooks.Timeout, log.With().Str("component", "webhook").Logger())

	toasts := newToastHub()

	h := &Handler{
		cfg:           cfg,
		pool:          pool,
		redis:         redisClient,
		authService:   authService,
		feed:          feed,
		toasts:        toasts,
		queue:         queue,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		devCookies:    devCookies,
	}

	if pool != nil {
		h.receitas = receita.NewService(receita.NewRepository(pool), cacheStore, feed, queue, cfg.Webhooks.Receita.URLs(), toasts, logger)
		h.prescricoes = prescricao.NewService(prescricao.NewRepository(pool), cacheStore, feed, queue, cfg.Webhooks.Prescricao.URLs(), toasts, logger)
		h.clientes = cliente.NewService(cliente.NewRepository(pool), cacheStore, feed, queue, cfg.Webhooks.Cliente.URLs(), toasts, logger)
		h.eventos = agenda.NewService(agenda.NewRepository(pool), cacheStore, feed, queue, cfg.Webhooks.Agenda.URLs(), toasts, logger)
		h.secretarias = secretaria.NewService(secretaria.Options{
			Repo:         secretaria.NewRepository(pool),
			Cache:        cacheStore,
			Feed:         feed,
			Queue:        queue,
			Dispatcher:   dispatcher,
			ConfigURLs:   cfg.Webhooks.Secretaria.URLs(),
			WhatsAppURLs: cfg.Webhooks.WhatsApp.URLs(),
			Logger:       logger,
		})
	} else {
		// Backend não configurado: serviços em modo degradado, coleções
		// vazias e sem rede.
		h.receitas = receita.NewService(nil, nil, nil, queue, cfg.Webhooks.Receita.URLs(), toasts, logger)
		h.prescricoes = prescricao.NewService(nil, nil, nil, queue, cfg.Webhooks.Prescricao.URLs(), toasts, logger)
		h.clientes = cliente.NewService(nil, nil, nil, queue, cfg.Webhooks.Cliente.URLs(), toasts, logger)
		h.eventos = agenda.NewService(nil, nil, nil, queue, cfg.Webhooks.Agenda.URLs(), toasts, logger)
		h.secretarias = secretaria.NewService(secretaria.Options{
			Queue:        queue,
			Dispatcher:   dispatcher,
			ConfigURLs:   cfg.Webhooks.Secretaria.URLs(),
			WhatsAppURLs: cfg.Webhooks.WhatsApp.URLs(),
			Logger:       logger,
		})
	}

	receitaHandler := receita.NewHandler(h.receitas)
	prescricaoHandler := prescricao.NewHandler(h.prescricoes)
	clienteHandler := cliente.NewHandler(h.clientes)
	agendaHandler := agenda.NewHandler(h.eventos)
	secretariaHandler := secretaria.NewHandler(h.secretarias)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)

		public.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Login)
			auth.Post("/refresh", h.Refresh)
			auth.Post("/logout", h.Logout)
		})

		public.Group(func(hooks chi.Router) {
			hooks.Use(httpmiddleware.HookSecret(cfg.Webhooks.Secret))
			receitaHandler.RegisterIngestRoute(hooks)
		})
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(authService.JWT()))
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		private.Get("/me", h.Me)
		private.Get("/sync/stream", h.SyncStream)

		receitaHandler.RegisterRoutes(private)
		prescricaoHandler.RegisterRoutes(private)
		clienteHandler.RegisterRoutes(private)
		agendaHandler.RegisterRoutes(private)
		secretariaHandler.RegisterRoutes(private)
	})

	cleanup := func() {
		h.receitas.Close()
		h.prescricoes.Close()
		h.clientes.Close()
		h.eventos.Close()
		h.secretarias.Close()
		queue.Close()
	}

	return r, cleanup, nil
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e Redis. Em modo degradado
// responde pronto sem dependências.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil || h.redis == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"ready": true, "degradado": true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.pool.Ping(ctx)
	redisErr := h.redis.Ping(ctx).Err()

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependências indisponíveis", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Login autentica a profissional.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Senha string `json:"senha"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if strings.TrimSpace(payload.Email) == "" || strings.TrimSpace(payload.Senha) == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "email e senha são obrigatórios", nil)
		return
	}

	result, err := h.authService.Login(r.Context(), payload.Email, payload.Senha)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.writeLoginSuccess(w, result)
}

// Refresh rotaciona token de acesso.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := getRefreshFromRequest(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "refresh ausente", nil)
		return
	}

	result, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrRefreshInvalid) {
			WriteError(w, http.StatusUnauthorized, "AUTH", "refresh inválido", nil)
			return
		}
		if errors.Is(err, service.ErrBackendUnavailable) {
			WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro ao renovar sessão", nil)
		return
	}

	h.writeLoginSuccess(w, result)
}

// Logout revoga refresh token atual.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, err := getRefreshFromRequest(r); err == nil {
		_ = h.authService.Logout(r.Context(), token)
	}

	h.clearRefreshCookie(w)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me retorna o perfil da usuária autenticada.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subjectStr := httpmiddleware.GetSubject(r.Context())

	subject, err := uuid.Parse(subjectStr)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "subject inválido", nil)
		return
	}

	profile, err := h.authService.GetMe(r.Context(), subject)
	if err != nil {
		if errors.Is(err, nutricionista.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "perfil não encontrado", nil)
			return
		}
		if errors.Is(err, service.ErrBackendUnavailable) {
			WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar perfil", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"user": profile})
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) {
	switch err {
	case service.ErrInvalidCredentials:
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case service.ErrAccountDisabled:
		WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case service.ErrBackendUnavailable:
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro ao autenticar", nil)
	}
}

func (h *Handler) writeLoginSuccess(w http.ResponseWriter, result *service.LoginResult) {
	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiry)

	WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"user":         result.Profile,
	})
}

const refreshCookieName = "nutrimatic_refresh"

func getRefreshFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errors.New("refresh ausente")
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}
