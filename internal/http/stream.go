package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nutrimatic/plataforma/internal/agenda"
	"github.com/nutrimatic/plataforma/internal/cliente"
	httpmiddleware "github.com/nutrimatic/plataforma/internal/http/middleware"
	"github.com/nutrimatic/plataforma/internal/prescricao"
	"github.com/nutrimatic/plataforma/internal/realtime"
	"github.com/nutrimatic/plataforma/internal/receita"
	"github.com/nutrimatic/plataforma/internal/secretaria"
	"github.com/nutrimatic/plataforma/internal/service"
	"github.com/nutrimatic/plataforma/internal/session"
)

// streamTables são as entidades replicadas para o dashboard via SSE.
var streamTables = []string{
	receita.Table,
	prescricao.Table,
	cliente.Table,
	agenda.Table,
	secretaria.Table,
}

const heartbeatInterval = 25 * time.Second

type streamMessage struct {
	event string
	data  []byte
}

// toastHub roteia avisos de interface para as conexões SSE da dona.
type toastHub struct {
	mu    sync.Mutex
	conns map[string]map[chan streamMessage]struct{}
}

func newToastHub() *toastHub {
	return &toastHub{conns: make(map[string]map[chan streamMessage]struct{})}
}

// Notify implementa store.Notifier. Entrega não bloqueante: conexões
// lentas perdem o toast em vez de travar o produtor.
func (h *toastHub) Notify(ownerID, title, message string) {
	data, err := json.Marshal(map[string]string{"title": title, "message": message})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.conns[ownerID] {
		select {
		case ch <- streamMessage{event: "toast", data: data}:
		default:
		}
	}
}

func (h *toastHub) attach(ownerID string, ch chan streamMessage) func() {
	h.mu.Lock()
	if h.conns[ownerID] == nil {
		h.conns[ownerID] = make(map[chan streamMessage]struct{})
	}
	h.conns[ownerID][ch] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.conns[ownerID], ch)
		if len(h.conns[ownerID]) == 0 {
			delete(h.conns, ownerID)
		}
		h.mu.Unlock()
	}
}

// SyncStream mantém a conexão SSE do dashboard: estado de sessão,
// eventos de mudança filtrados por dona e toasts.
func (h *Handler) SyncStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "streaming não suportado", nil)
		return
	}

	ownerID := httpmiddleware.GetSubject(r.Context())
	if ownerID == "" {
		WriteError(w, http.StatusUnauthorized, "AUTH", "sessão ausente", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	messages := make(chan streamMessage, 64)

	detachToasts := h.toasts.attach(ownerID, messages)
	defer detachToasts()

	var unsubs []func()
	if h.feed != nil {
		for _, table := range streamTables {
			unsubs = append(unsubs, h.feed.Subscribe(table, func(event realtime.Event) {
				if eventOwner(event) != ownerID {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					return
				}
				select {
				case messages <- streamMessage{event: "change", data: data}:
				default:
					log.Warn().Str("owner", ownerID).Str("table", event.Table).Msg("conexão sse lenta, evento descartado")
				}
			}))
		}
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	// Bootstrap de sessão da conexão: o estado resultante é o primeiro
	// evento enviado para o cliente.
	backend := service.NewSessionBackend(h.authService, bearerToken(r), refreshToken(r))
	manager := session.NewManager(backend, h.cfg.BackendConfigured(), h.cfg.SessionTimeout, log.With().Str("component", "session").Logger())
	manager.Bootstrap(r.Context())

	if data, err := json.Marshal(sessionPayload(manager.State())); err == nil {
		writeSSE(w, "session", data)
		flusher.Flush()
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-messages:
			writeSSE(w, msg.event, msg.data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func sessionPayload(state session.State) map[string]any {
	payload := map[string]any{
		"initialized": state.Initialized,
		"loading":     state.Loading,
	}
	if state.User != nil {
		payload["user"] = map[string]string{"id": state.User.ID, "email": state.User.Email}
	}
	if state.Profile != nil {
		payload["profile"] = map[string]any{
			"id":          state.Profile.ID,
			"nome":        state.Profile.Nome,
			"email":       state.Profile.Email,
			"placeholder": state.Profile.Placeholder,
		}
	}
	return payload
}

// eventOwner extrai a identificação da dona do payload do evento.
// DELETEs carregam a linha em Old.
func eventOwner(event realtime.Event) string {
	raw := event.New
	if len(raw) == 0 {
		raw = event.Old
	}
	if len(raw) == 0 {
		return ""
	}

	var row struct {
		Identificacao string `json:"identificacao"`
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return ""
	}
	return row.Identificacao
}

func writeSSE(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func refreshToken(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil {
		return c.Value
	}
	return ""
}
