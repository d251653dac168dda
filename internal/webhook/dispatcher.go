package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Outcome registra o resultado individual de um endpoint.
type Outcome struct {
	URL        string
	StatusCode int
	Err        error
	Body       string
	JSON       map[string]any
}

// OK indica resposta HTTP 2xx.
func (o Outcome) OK() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300
}

// Result agrega os resultados de todos os endpoints de um disparo.
type Result struct {
	Outcomes []Outcome
}

// OK aplica a política "pelo menos um": basta um endpoint 2xx para o
// disparo contar como sucesso.
func (r Result) OK() bool {
	for _, o := range r.Outcomes {
		if o.OK() {
			return true
		}
	}
	return false
}

// Dispatcher envia o mesmo payload para múltiplos endpoints de
// automação em paralelo e coleta todos os resultados; nenhuma falha
// individual aborta as demais.
type Dispatcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewDispatcher cria dispatcher com timeout por requisição.
func NewDispatcher(timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send dispara o payload para todos os endpoints e espera todos os
// resultados.
func (d *Dispatcher) Send(ctx context.Context, urls []string, payload any) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		outcomes := make([]Outcome, 0, len(urls))
		for _, u := range urls {
			outcomes = append(outcomes, Outcome{URL: u, Err: err})
		}
		return Result{Outcomes: outcomes}
	}

	outcomes := make([]Outcome, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			outcomes[i] = d.post(ctx, u, body)
		}(i, u)
	}
	wg.Wait()

	return Result{Outcomes: outcomes}
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) Outcome {
	outcome := Outcome{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		outcome.Err = err
		return outcome
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Body = string(raw)

	// O conteúdo pode vir como JSON ou texto puro; só o content-type
	// decide o parse.
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed map[string]any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			outcome.JSON = parsed
		}
	}

	return outcome
}

// Payload monta o envelope padrão dos webhooks de automação.
func Payload(user, profile any, fields map[string]any) map[string]any {
	payload := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"user":      user,
		"profile":   profile,
	}
	for k, v := range fields {
		payload[k] = v
	}
	return payload
}
