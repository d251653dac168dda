package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func jsonServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func textServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestAtLeastOneOKPolicy(t *testing.T) {
	down := jsonServer(t, http.StatusInternalServerError, `{"error":"boom"}`)
	defer down.Close()
	up := jsonServer(t, http.StatusOK, `{"ok":true}`)
	defer up.Close()

	d := NewDispatcher(5*time.Second, testLogger())
	res := d.Send(context.Background(), []string{down.URL, up.URL}, map[string]any{"x": 1})

	if !res.OK() {
		t.Fatal("um endpoint 200 basta para sucesso")
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("todos os resultados devem ser coletados: %d", len(res.Outcomes))
	}
}

func TestAllFailingIsFailure(t *testing.T) {
	down1 := jsonServer(t, http.StatusInternalServerError, `{}`)
	defer down1.Close()
	down2 := textServer(t, http.StatusBadGateway, "bad gateway")
	defer down2.Close()

	d := NewDispatcher(5*time.Second, testLogger())
	res := d.Send(context.Background(), []string{down1.URL, down2.URL}, nil)

	if res.OK() {
		t.Fatal("nenhum 2xx não pode contar como sucesso")
	}
}

func TestUnreachableEndpointDoesNotAbortOthers(t *testing.T) {
	up := textServer(t, http.StatusOK, "ok")
	defer up.Close()

	d := NewDispatcher(2*time.Second, testLogger())
	res := d.Send(context.Background(), []string{"http://127.0.0.1:1/nope", up.URL}, nil)

	if !res.OK() {
		t.Fatal("falha de conexão em um endpoint não pode derrubar o disparo")
	}
	if res.Outcomes[0].Err == nil {
		t.Fatal("o erro individual deve ficar registrado no resultado")
	}
}

func TestContentTypeDrivesParsing(t *testing.T) {
	asJSON := jsonServer(t, http.StatusOK, `{"status":"Conectado"}`)
	defer asJSON.Close()
	asText := textServer(t, http.StatusOK, `{"status":"Conectado"}`)
	defer asText.Close()

	d := NewDispatcher(5*time.Second, testLogger())

	res := d.Send(context.Background(), []string{asJSON.URL}, nil)
	if res.Outcomes[0].JSON == nil {
		t.Fatal("content-type json deveria ser parseado")
	}

	res = d.Send(context.Background(), []string{asText.URL}, nil)
	if res.Outcomes[0].JSON != nil {
		t.Fatal("texto puro não deve virar JSON mesmo parecendo JSON")
	}
	if res.Outcomes[0].Body == "" {
		t.Fatal("corpo texto deve ficar disponível cru")
	}
}

func TestExtractConnectionStatus(t *testing.T) {
	cases := []struct {
		body string
		json bool
		want string
	}{
		{`{"status":"Conectado"}`, true, "conectado"},
		{`{"status":"  DESCONECTADO "}`, true, "desconectado"},
		{`{"state":"connected"}`, true, "conectado"},
		{`{"status":"desconnected"}`, true, "desconectado"},
		{"Conectado\n", false, "conectado"},
		{"whatsapp desconectado", false, "desconectado"},
	}

	d := NewDispatcher(5*time.Second, testLogger())
	for _, tc := range cases {
		var srv *httptest.Server
		if tc.json {
			srv = jsonServer(t, http.StatusOK, tc.body)
		} else {
			srv = textServer(t, http.StatusOK, tc.body)
		}
		res := d.Send(context.Background(), []string{srv.URL}, nil)
		srv.Close()

		status, ok := ExtractConnectionStatus(res)
		if !ok || status != tc.want {
			t.Errorf("body %q: status=%q ok=%v, esperava %q", tc.body, status, ok, tc.want)
		}
	}
}

func TestExtractConnectionStatusUnknown(t *testing.T) {
	srv := textServer(t, http.StatusOK, "carregando")
	defer srv.Close()

	d := NewDispatcher(5*time.Second, testLogger())
	res := d.Send(context.Background(), []string{srv.URL}, nil)

	if _, ok := ExtractConnectionStatus(res); ok {
		t.Fatal("vocabulário desconhecido não pode virar status")
	}
}

func TestExtractQRCodeFieldVariants(t *testing.T) {
	for _, body := range []string{
		`{"qrcode":"iVBORw0KGgo="}`,
		`{"qr_code":"iVBORw0KGgo="}`,
		`{"base64":"iVBORw0KGgo="}`,
	} {
		srv := jsonServer(t, http.StatusOK, body)
		d := NewDispatcher(5*time.Second, testLogger())
		res := d.Send(context.Background(), []string{srv.URL}, nil)
		srv.Close()

		qr, ok := ExtractQRCode(res)
		if !ok || qr != "iVBORw0KGgo=" {
			t.Errorf("body %q: qr=%q ok=%v", body, qr, ok)
		}
	}
}

func TestPayloadEnvelope(t *testing.T) {
	p := Payload("nutri-a", map[string]any{"nome": "Ana"}, map[string]any{"cliente": "c1"})
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	for _, key := range []string{"timestamp", "user", "profile", "cliente"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("envelope sem campo %q", key)
		}
	}
}

func TestBestEffortDoesNotBlockAndLogsOnly(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(2*time.Second, testLogger())
	be := NewBestEffort(d, 4, 2*time.Second, testLogger())

	start := time.Now()
	be.Enqueue([]string{srv.URL}, map[string]any{"x": 1})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Enqueue não pode bloquear no disparo")
	}

	be.Close()
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("disparo enfileirado não foi entregue: hits=%d", hits)
	}
}
