package secretaria

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/nutrimatic/plataforma/internal/http/middleware"
)

// Handler orquestra rotas da secretária virtual.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registra as rotas autenticadas do módulo.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/secretaria", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleSave)
		r.Post("/reload", h.handleReload)
		r.Post("/whatsapp/conectar", h.handleConnect)
		r.Get("/whatsapp/status", h.handleStatus)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	cfg, snap := h.service.Get(ctx, ownerID)

	logRequest(ctx, "GET /secretaria", ownerID, start)
	writeJSON(w, http.StatusOK, map[string]any{
		"config":    cfg,
		"erro":      nullableString(snap.Err),
		"cacheada":  snap.FromCache,
		"carregada": snap.Initialized,
	})
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	cfg, snap := h.service.Reload(ctx, ownerID)
	writeJSON(w, http.StatusOK, map[string]any{
		"config": cfg,
		"erro":   nullableString(snap.Err),
	})
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	var payload struct {
		AgentName        string  `json:"agent_name"`
		BusinessName     string  `json:"business_name"`
		Creativity       float64 `json:"creativity"`
		Emojis           bool    `json:"emojis"`
		ConsultationTime int     `json:"consultation_time"`
		ReturnTime       int     `json:"return_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	saved, err := h.service.Save(ctx, ownerID, SaveInput{
		AgentName:        payload.AgentName,
		BusinessName:     payload.BusinessName,
		Creativity:       payload.Creativity,
		Emojis:           payload.Emojis,
		ConsultationTime: payload.ConsultationTime,
		ReturnTime:       payload.ReturnTime,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "PUT /secretaria", ownerID, start)
	writeJSON(w, http.StatusOK, map[string]any{"config": saved})
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	qr, err := h.service.ConnectWhatsApp(ctx, ownerID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "UPSTREAM", err.Error(), nil)
		return
	}

	logRequest(ctx, "POST /secretaria/whatsapp/conectar", ownerID, start)
	writeJSON(w, http.StatusOK, map[string]any{"qrcode": qr})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	status, err := h.service.ConnectionStatus(ctx, ownerID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "UPSTREAM", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func subjectAsUUID(ctx context.Context) (uuid.UUID, error) {
	return uuid.Parse(httpmiddleware.GetSubject(ctx))
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "configuração não encontrada", nil)
	case errors.Is(err, ErrCreativityRange):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
	default:
		log.Error().Err(err).Msg("secretaria handler error")
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	}
}

func logRequest(ctx context.Context, label string, userID uuid.UUID, start time.Time) {
	reqID := chimiddleware.GetReqID(ctx)
	log.Info().Str("request_id", reqID).Str("user_id", userID.String()).Str("label", label).Dur("duration", time.Since(start)).Msg("secretaria_request")
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": payload, "error": nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
