package agenda

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

// Handler orquestra rotas da agenda.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registra as rotas autenticadas do módulo.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/agenda", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Post("/reload", h.handleReload)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

type eventoPayload struct {
	Dia       string     `json:"dia"`
	Horario   string     `json:"horario"`
	Acao      string     `json:"acao"`
	Numero    string     `json:"numero"`
	ClienteID *uuid.UUID `json:"cliente_id"`
}

func (p eventoPayload) input() EventoInput {
	return EventoInput{
		Dia:       p.Dia,
		Horario:   p.Horario,
		Acao:      p.Acao,
		Numero:    p.Numero,
		ClienteID: p.ClienteID,
	}
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

	logRequest(ctx, "GET /agenda", ownerID, start)
	writeJSON(w, http.StatusOK, map[string]any{
		"eventos":   snap.Items,
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
		"eventos": snap.Items,
		"erro":    nullableString(snap.Err),
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	var payload eventoPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	saved, err := h.service.Create(ctx, ownerID, payload.input())
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /agenda", ownerID, start)
	writeJSON(w, http.StatusCreated, map[string]any{"evento": saved})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "evento inválido", nil)
		return
	}

	var payload eventoPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	updated, err := h.service.Update(ctx, ownerID, id, payload.input())
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "PUT /agenda", ownerID, start)
	writeJSON(w, http.StatusOK, map[string]any{"evento": updated})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	ownerID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "evento inválido", nil)
		return
	}

	if err := h.service.Delete(ctx, ownerID, id); err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "DELETE /agenda", ownerID, start)
	writeJSON(w, http.StatusOK, map[string]any{"excluido": true})
}

func subjectAsUUID(ctx context.Context) (uuid.UUID, error) {
	return uuid.Parse(httpmiddleware.GetSubject(ctx))
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "evento não encontrado", nil)
	case errors.Is(err, ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
	default:
		log.Error().Err(err).Msg("agenda handler error")
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	}
}

func logRequest(ctx context.Context, label string, userID uuid.UUID, start time.Time) {
	reqID := chimiddleware.GetReqID(ctx)
	log.Info().Str("request_id", reqID).Str("user_id", userID.String()).Str("label", label).Dur("duration", time.Since(start)).Msg("agenda_request")
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
