package receita

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

// Handler orquestra rotas de receitas.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registra as rotas autenticadas do módulo.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/receitas", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/reload", h.handleReload)
		r.Get("/stats", h.handleStats)
		r.Post("/{id}/aprovar", h.handleApprove)
		r.Post("/{id}/reprovar", h.handleReject)
	})
}

// RegisterIngestRoute registra o callback público do fluxo de
// automação que insere receitas.
func (h *Handler) RegisterIngestRoute(r chi.Router) {
	r.Post("/hooks/receitas", h.handleIngest)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	snap := h.service.List(ctx, ownerID)

	logRequest(ctx, "GET /receitas", ownerID, start)
	writeJSON(w, http.StatusOK, map[string]any{
		"receitas":  snap.Items,
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

	snap := h.service.Reload(ctx, ownerID)
	writeJSON(w, http.StatusOK, map[string]any{
		"receitas": snap.Items,
		"erro":     nullableString(snap.Err),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": h.service.Stats(ctx, ownerID)})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "receita inválida", nil)
		return
	}

	updated, err := h.service.Approve(ctx, ownerID, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /receitas/aprovar", ownerID, start)
	writeJSON(w, http.StatusOK, map[string]any{"receita": updated})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "receita inválida", nil)
		return
	}

	var payload struct {
		Observacao string `json:"observacao"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	updated, err := h.service.Reject(ctx, ownerID, id, payload.Observacao)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /receitas/reprovar", ownerID, start)
	writeJSON(w, http.StatusOK, map[string]any{"receita": updated})
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Identificacao string `json:"identificacao"`
		Nome          string `json:"nome"`
		URL           string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	ownerID, err := uuid.Parse(payload.Identificacao)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identificação inválida", nil)
		return
	}

	saved, err := h.service.Ingest(r.Context(), IngestInput{
		Identificacao: ownerID,
		Nome:          payload.Nome,
		URL:           payload.URL,
	})
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
			return
		}
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"receita": saved})
}

func subjectAsUUID(ctx context.Context) (uuid.UUID, error) {
	return uuid.Parse(httpmiddleware.GetSubject(ctx))
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "receita não encontrada", nil)
	case errors.Is(err, ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
	default:
		log.Error().Err(err).Msg("receita handler error")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
	}
}

func logRequest(ctx context.Context, label string, userID uuid.UUID, start time.Time) {
	reqID := chimiddleware.GetReqID(ctx)
	log.Info().Str("request_id", reqID).Str("user_id", userID.String()).Str("label", label).Dur("duration", time.Since(start)).Msg("receita_request")
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
