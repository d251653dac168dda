package realtime

import (
	"encoding/json"
	"testing"
)

func TestDispatchRoutesByTable(t *testing.T) {
	feed := NewFeed(nil, testLogger())

	var receitas, clientes int
	unsub := feed.Subscribe("receitas", func(Event) { receitas++ })
	feed.Subscribe("clientes", func(Event) { clientes++ })

	feed.Dispatch(Event{Table: "receitas", Type: EventInsert})
	feed.Dispatch(Event{Table: "receitas", Type: EventUpdate})
	feed.Dispatch(Event{Table: "clientes", Type: EventDelete})

	if receitas != 2 || clientes != 1 {
		t.Fatalf("roteamento errado: receitas=%d clientes=%d", receitas, clientes)
	}

	unsub()
	feed.Dispatch(Event{Table: "receitas", Type: EventInsert})
	if receitas != 2 {
		t.Fatal("handler cancelado continuou recebendo eventos")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	feed := NewFeed(nil, testLogger())
	unsub := feed.Subscribe("agenda", func(Event) {})
	unsub()
	unsub()
}

func TestEventRoundTrip(t *testing.T) {
	payload := `{"table":"receitas","event_type":"UPDATE","new":{"id":"r1","status":"approved"},"old":{"id":"r1","status":"pending"}}`

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Table != "receitas" || event.Type != EventUpdate {
		t.Fatalf("evento decodificado errado: %+v", event)
	}

	var row struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(event.New, &row); err != nil {
		t.Fatalf("new: %v", err)
	}
	if row.Status != "approved" {
		t.Fatalf("linha nova errada: %+v", row)
	}
}
