package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port          int
	DBDSN         string
	RedisURL      string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration
	JWTSecret     string
	AllowOrigins  []string

	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig

	// Janela de frescor do cache de snapshots por entidade.
	CacheFreshness time.Duration

	// Timeout do bootstrap de sessão (busca de sessão e de perfil).
	SessionTimeout time.Duration

	Webhooks WebhookConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// WebhookConfig agrupa endpoints de automação (teste + produção por fluxo).
type WebhookConfig struct {
	Cliente    EndpointPair
	Agenda     EndpointPair
	Secretaria EndpointPair
	Receita    EndpointPair
	Prescricao EndpointPair
	WhatsApp   EndpointPair
	Timeout    time.Duration
	QueueSize  int

	// Secret autentica os callbacks públicos vindos da automação.
	Secret string
}

// EndpointPair contém URLs de teste e produção de um mesmo fluxo.
type EndpointPair struct {
	Test string
	Prod string
}

// URLs devolve os endpoints não vazios na ordem teste, produção.
func (p EndpointPair) URLs() []string {
	var urls []string
	if p.Test != "" {
		urls = append(urls, p.Test)
	}
	if p.Prod != "" {
		urls = append(urls, p.Prod)
	}
	return urls
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	cfg.RedisURL = getEnv("REDIS_URL", "")

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if cfg.BackendConfigured() && len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	accessTTL, err := parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.JWTAccessTTL = accessTTL

	refreshTTL, err := parseDurationEnv("JWT_REFRESH_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.JWTRefreshTTL = refreshTTL

	freshness, err := parseDurationEnv("CACHE_FRESHNESS", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.CacheFreshness = freshness

	sessionTimeout, err := parseDurationEnv("SESSION_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.SessionTimeout = sessionTimeout

	allowOrigins := strings.Split(getEnv("ALLOW_ORIGINS", ""), ",")
	cfg.AllowOrigins = nil
	for _, origin := range allowOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	webhookTimeout, err := parseDurationEnv("WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Webhooks = WebhookConfig{
		Cliente:    endpointPair("WEBHOOK_CLIENTE"),
		Agenda:     endpointPair("WEBHOOK_AGENDA"),
		Secretaria: endpointPair("WEBHOOK_SECRETARIA"),
		Receita:    endpointPair("WEBHOOK_RECEITA"),
		Prescricao: endpointPair("WEBHOOK_PRESCRICAO"),
		WhatsApp:   endpointPair("WEBHOOK_WHATSAPP"),
		Timeout:    webhookTimeout,
		QueueSize:  64,
		Secret:     strings.TrimSpace(getEnv("WEBHOOK_SECRET", "")),
	}
	if cfg.BackendConfigured() && cfg.Webhooks.Secret == "" {
		return nil, errors.New("WEBHOOK_SECRET é obrigatório com backend configurado")
	}

	return cfg, nil
}

// BackendConfigured indica se as dependências de persistência foram
// informadas. Quando falso a aplicação opera em modo degradado: sem
// chamadas de rede, coleções vazias.
func (c *Config) BackendConfigured() bool {
	return c.DBDSN != "" && c.RedisURL != ""
}

func endpointPair(prefix string) EndpointPair {
	return EndpointPair{
		Test: strings.TrimSpace(getEnv(prefix+"_TEST_URL", "")),
		Prod: strings.TrimSpace(getEnv(prefix+"_PROD_URL", "")),
	}
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}
