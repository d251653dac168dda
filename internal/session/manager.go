package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// User é a identidade autenticada mantida pela sessão.
type User struct {
	ID    string
	Email string
}

// Profile é o registro denormalizado da nutricionista dona da sessão.
// Placeholder indica perfil sintetizado quando a busca real falhou ou
// estourou o prazo.
type Profile struct {
	ID          string
	Nome        string
	Email       string
	Placeholder bool
}

// Backend abstrai as chamadas de autenticação e perfil. GetSession
// devolve (nil, nil) quando não há sessão ativa.
type Backend interface {
	GetSession(ctx context.Context) (*User, error)
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	SignOut(ctx context.Context) error
}

// EventType identifica mudanças de estado de autenticação.
type EventType string

const (
	SignedIn       EventType = "SIGNED_IN"
	SignedOut      EventType = "SIGNED_OUT"
	TokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event carrega a mudança e a sessão que a acompanha (pode ser nula).
type Event struct {
	Type EventType
	User *User
}

// State é a leitura instantânea da sessão.
type State struct {
	User        *User
	Profile     *Profile
	Loading     bool
	Initialized bool
}

// Manager reproduz o protocolo de bootstrap de sessão do dashboard:
// prazo duro na busca de sessão, perfil com placeholder em caso de
// falha, trava de inicialização antes de aceitar eventos e supressão
// de refetch quando a identidade não mudou.
type Manager struct {
	backend    Backend
	configured bool
	timeout    time.Duration
	logger     zerolog.Logger

	mu          sync.Mutex
	user        *User
	profile     *Profile
	loading     bool
	initialized bool
}

// NewManager cria o manager; configured=false ativa o modo degradado
// (sem chamadas de rede, sessão vazia).
func NewManager(backend Backend, configured bool, timeout time.Duration, logger zerolog.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		backend:    backend,
		configured: configured,
		timeout:    timeout,
		logger:     logger,
		loading:    true,
	}
}

// Bootstrap executa a sequência inicial. Nunca bloqueia além dos dois
// prazos (sessão e perfil); timeout vale como "sem sessão", não erro.
func (m *Manager) Bootstrap(ctx context.Context) {
	if !m.configured {
		m.settle(nil, nil)
		return
	}

	user, err := awaitDeadline(ctx, m.timeout, m.backend.GetSession)
	if err != nil {
		m.logger.Warn().Err(err).Msg("sessão: bootstrap sem sessão")
		m.settle(nil, nil)
		return
	}
	if user == nil {
		m.settle(nil, nil)
		return
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	profile := m.fetchProfile(ctx, user)
	m.settle(user, profile)
}

// HandleEvent processa mudanças posteriores ao bootstrap. Eventos
// anteriores à inicialização são descartados para não reprocessar a
// sessão de bootstrap como um novo SIGNED_IN.
func (m *Manager) HandleEvent(ctx context.Context, event Event) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		m.logger.Debug().Str("event", string(event.Type)).Msg("sessão: evento antes do bootstrap descartado")
		return
	}
	current := m.user
	m.mu.Unlock()

	switch event.Type {
	case SignedIn:
		if event.User == nil {
			m.clear()
			return
		}
		if current != nil && current.ID == event.User.ID {
			// Mesmo usuário (ex.: aba recuperou foco): nada de loading,
			// nada de refetch.
			return
		}
		m.mu.Lock()
		m.loading = true
		m.user = event.User
		m.mu.Unlock()

		profile := m.fetchProfile(ctx, event.User)
		m.settle(event.User, profile)
	case TokenRefreshed:
		if event.User == nil {
			m.clear()
			return
		}
		m.mu.Lock()
		m.user = event.User
		sameIdentity := current != nil && current.ID == event.User.ID
		m.mu.Unlock()
		if sameIdentity {
			return
		}
		profile := m.fetchProfile(ctx, event.User)
		m.settle(event.User, profile)
	case SignedOut:
		m.clear()
	}
}

// SignOut limpa o estado local incondicionalmente e só depois tenta o
// backend; a falha remota não impede a limpeza.
func (m *Manager) SignOut(ctx context.Context) error {
	m.clear()
	if !m.configured {
		return nil
	}
	if err := m.backend.SignOut(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("sessão: sign-out remoto falhou")
		return err
	}
	return nil
}

// State devolve a leitura atual.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		User:        m.user,
		Profile:     m.profile,
		Loading:     m.loading,
		Initialized: m.initialized,
	}
}

func (m *Manager) fetchProfile(ctx context.Context, user *User) *Profile {
	profile, err := awaitDeadline(ctx, m.timeout, func(ctx context.Context) (*Profile, error) {
		return m.backend.GetProfile(ctx, user.ID)
	})
	if err != nil || profile == nil {
		if err != nil {
			m.logger.Warn().Err(err).Msg("sessão: perfil indisponível, usando placeholder")
		}
		return placeholderProfile(user)
	}
	return profile
}

func (m *Manager) settle(user *User, profile *Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
	m.profile = profile
	m.loading = false
	m.initialized = true
}

func (m *Manager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.profile = nil
	m.loading = false
}

func placeholderProfile(user *User) *Profile {
	nome := user.Email
	if at := strings.Index(nome, "@"); at > 0 {
		nome = nome[:at]
	}
	return &Profile{
		ID:          user.ID,
		Nome:        nome,
		Email:       user.Email,
		Placeholder: true,
	}
}

// awaitDeadline executa fn com prazo explícito: se o prazo vence antes
// da chamada resolver, o resultado tardio é abandonado.
func awaitDeadline[T any](parent context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		value, err := fn(ctx)
		ch <- outcome{value: value, err: err}
	}()

	select {
	case out := <-ch:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
