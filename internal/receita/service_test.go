package receita

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubRepo struct {
	receitas  []Receita
	updateErr error
	updated   *Receita
}

func (s *stubRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Receita, error) {
	var out []Receita
	for _, rec := range s.receitas {
		if rec.Identificacao == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubRepo) Insert(ctx context.Context, rec Receita) (Receita, error) {
	rec.CriadoEm = time.Now()
	s.receitas = append(s.receitas, rec)
	return rec, nil
}

func (s *stubRepo) UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status string, observation *string) (Receita, error) {
	if s.updateErr != nil {
		return Receita{}, s.updateErr
	}
	for i := range s.receitas {
		if s.receitas[i].ID == id && s.receitas[i].Identificacao == ownerID {
			s.receitas[i].Status = status
			s.receitas[i].RejectionObservation = observation
			s.updated = &s.receitas[i]
			return s.receitas[i], nil
		}
	}
	return Receita{}, ErrNotFound
}

type stubQueue struct {
	payloads []any
}

func (s *stubQueue) Enqueue(urls []string, payload any) {
	s.payloads = append(s.payloads, payload)
}

func newTestService(repo *stubRepo, queue *stubQueue) *Service {
	return NewService(repo, nil, nil, queue, []string{"http://teste", "http://prod"}, nil, zerolog.New(io.Discard))
}

func TestApprovePersistsBeforeLocalCommit(t *testing.T) {
	owner := uuid.New()
	rec := Receita{ID: uuid.New(), Identificacao: owner, Nome: "Sopa", Status: StatusPending}
	repo := &stubRepo{receitas: []Receita{rec}}
	queue := &stubQueue{}
	svc := newTestService(repo, queue)

	svc.List(context.Background(), owner)

	updated, err := svc.Approve(context.Background(), owner, rec.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if updated.Status != StatusApproved {
		t.Fatalf("status retornado errado: %s", updated.Status)
	}
	if repo.updated == nil || repo.updated.Status != StatusApproved {
		t.Fatal("aprovação precisa ser persistida no banco de registro")
	}

	snap := svc.List(context.Background(), owner)
	if snap.Items[0].Status != StatusApproved {
		t.Fatalf("estado local não acompanhou a escrita: %+v", snap.Items)
	}
	if len(queue.payloads) != 1 {
		t.Fatalf("esperava 1 webhook de notificação, veio %d", len(queue.payloads))
	}
}

func TestRejectCarriesObservation(t *testing.T) {
	owner := uuid.New()
	rec := Receita{ID: uuid.New(), Identificacao: owner, Nome: "Bolo", Status: StatusPending}
	repo := &stubRepo{receitas: []Receita{rec}}
	svc := newTestService(repo, &stubQueue{})

	svc.List(context.Background(), owner)

	updated, err := svc.Reject(context.Background(), owner, rec.ID, "  refazer o plano  ")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if updated.Status != StatusRejected {
		t.Fatalf("status errado: %s", updated.Status)
	}
	if updated.RejectionObservation == nil || *updated.RejectionObservation != "refazer o plano" {
		t.Fatalf("observação não persistida: %v", updated.RejectionObservation)
	}
}

func TestFailedWriteDoesNotCommitLocally(t *testing.T) {
	owner := uuid.New()
	rec := Receita{ID: uuid.New(), Identificacao: owner, Status: StatusPending}
	repo := &stubRepo{receitas: []Receita{rec}, updateErr: errors.New("banco fora")}
	queue := &stubQueue{}
	svc := newTestService(repo, queue)

	svc.List(context.Background(), owner)

	if _, err := svc.Approve(context.Background(), owner, rec.ID); err == nil {
		t.Fatal("falha de escrita deveria subir para quem chamou")
	}

	snap := svc.List(context.Background(), owner)
	if snap.Items[0].Status != StatusPending {
		t.Fatalf("falha de escrita não pode comitar otimista: %+v", snap.Items)
	}
	if len(queue.payloads) != 0 {
		t.Fatal("falha de escrita não pode disparar webhook")
	}
}

func TestApproveScopedToOwner(t *testing.T) {
	ownerA := uuid.New()
	ownerB := uuid.New()
	rec := Receita{ID: uuid.New(), Identificacao: ownerB, Status: StatusPending}
	repo := &stubRepo{receitas: []Receita{rec}}
	svc := newTestService(repo, &stubQueue{})

	if _, err := svc.Approve(context.Background(), ownerA, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("aprovar receita de outra dona deveria dar ErrNotFound, veio %v", err)
	}
}

func TestIngestValidatesAndPrepends(t *testing.T) {
	owner := uuid.New()
	repo := &stubRepo{}
	svc := newTestService(repo, &stubQueue{})
	svc.List(context.Background(), owner)

	if _, err := svc.Ingest(context.Background(), IngestInput{Identificacao: owner, Nome: "", URL: "http://x"}); err == nil {
		t.Fatal("nome vazio deveria falhar")
	}

	saved, err := svc.Ingest(context.Background(), IngestInput{Identificacao: owner, Nome: "Panqueca", URL: "http://r"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if saved.Status != StatusPending {
		t.Fatalf("receita nova nasce pendente: %s", saved.Status)
	}

	snap := svc.List(context.Background(), owner)
	if len(snap.Items) != 1 || snap.Items[0].ID != saved.ID {
		t.Fatalf("receita ingerida deveria aparecer no topo: %+v", snap.Items)
	}
}

func TestBuildStatsWindows(t *testing.T) {
	// Quarta-feira; semana começa na segunda 09/03, mês em 01/03.
	now := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)

	items := []Receita{
		{Status: StatusApproved, CriadoEm: time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)},
		{Status: StatusPending, CriadoEm: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{Status: StatusRejected, CriadoEm: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
		{Status: StatusApproved, CriadoEm: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)},
	}

	stats := BuildStats(items, now)
	if stats.Total != 4 || stats.Aprovadas != 2 || stats.Pendentes != 1 || stats.Rejeitadas != 1 {
		t.Fatalf("contagens por status erradas: %+v", stats)
	}
	if stats.Semana != 2 {
		t.Fatalf("janela semanal errada: %+v", stats)
	}
	if stats.Mes != 3 {
		t.Fatalf("janela mensal errada: %+v", stats)
	}
}

func TestWritesWithoutBackendFail(t *testing.T) {
	queue := &stubQueue{}
	svc := NewService(nil, nil, nil, queue, []string{"http://teste"}, nil, zerolog.New(io.Discard))

	_, err := svc.Ingest(context.Background(), IngestInput{Identificacao: uuid.New(), Nome: "Sopa"})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("ingestão sem backend deveria dar ErrBackendUnavailable, veio %v", err)
	}
	if _, err := svc.Approve(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("aprovação sem backend deveria dar ErrBackendUnavailable, veio %v", err)
	}
	if len(queue.payloads) != 0 {
		t.Fatal("modo degradado não pode disparar webhook")
	}
}
