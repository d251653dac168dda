package prescricao

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
	prescricoes []Prescricao
	regras      map[uuid.UUID]string
	updateErr   error
	regrasErr   error
}

func (s *stubRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Prescricao, error) {
	var out []Prescricao
	for _, presc := range s.prescricoes {
		if presc.Identificacao == ownerID {
			out = append(out, presc)
		}
	}
	return out, nil
}

func (s *stubRepo) UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status string) (Prescricao, error) {
	if s.updateErr != nil {
		return Prescricao{}, s.updateErr
	}
	for i := range s.prescricoes {
		if s.prescricoes[i].ID == id && s.prescricoes[i].Identificacao == ownerID {
			s.prescricoes[i].Status = status
			return s.prescricoes[i], nil
		}
	}
	return Prescricao{}, ErrNotFound
}

func (s *stubRepo) UpdateStatusComRegras(ctx context.Context, ownerID, id uuid.UUID, status, regras string) (Prescricao, error) {
	// A falha na escrita das regras desfaz a transação inteira, então o
	// status do stub também fica intacto.
	if s.regrasErr != nil {
		return Prescricao{}, s.regrasErr
	}
	presc, err := s.UpdateStatus(ctx, ownerID, id, status)
	if err != nil {
		return Prescricao{}, err
	}
	if s.regras == nil {
		s.regras = map[uuid.UUID]string{}
	}
	s.regras[ownerID] = regras
	return presc, nil
}

type stubQueue struct {
	payloads []any
}

func (s *stubQueue) Enqueue(urls []string, payload any) {
	s.payloads = append(s.payloads, payload)
}

func newTestService(repo *stubRepo, queue *stubQueue) *Service {
	return NewService(repo, nil, nil, queue, []string{"http://teste"}, nil, zerolog.New(io.Discard))
}

func TestApproveAndRejectTransitions(t *testing.T) {
	owner := uuid.New()
	first := Prescricao{ID: uuid.New(), Identificacao: owner, Status: StatusPendente}
	second := Prescricao{ID: uuid.New(), Identificacao: owner, Status: StatusPendente}
	repo := &stubRepo{prescricoes: []Prescricao{first, second}}
	svc := newTestService(repo, &stubQueue{})

	svc.List(context.Background(), owner)

	approved, err := svc.Approve(context.Background(), owner, first.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != StatusAprovada {
		t.Fatalf("aprovar deve resultar em %q, veio %q", StatusAprovada, approved.Status)
	}

	redone, err := svc.Reject(context.Background(), owner, second.ID, "redo diet plan")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if redone.Status != StatusRefazendo {
		t.Fatalf("reprovar deve resultar em %q, veio %q", StatusRefazendo, redone.Status)
	}
	if repo.regras[owner] != "redo diet plan" {
		t.Fatalf("observação deveria ir para as regras da profissional: %v", repo.regras)
	}

	snap := svc.List(context.Background(), owner)
	byID := map[uuid.UUID]string{}
	for _, item := range snap.Items {
		byID[item.ID] = item.Status
	}
	if byID[first.ID] != StatusAprovada || byID[second.ID] != StatusRefazendo {
		t.Fatalf("estado local não acompanhou as transições: %v", byID)
	}
}

func TestRejectWithoutObservationSkipsRegras(t *testing.T) {
	owner := uuid.New()
	presc := Prescricao{ID: uuid.New(), Identificacao: owner, Status: StatusPendente}
	repo := &stubRepo{prescricoes: []Prescricao{presc}}
	svc := newTestService(repo, &stubQueue{})
	svc.List(context.Background(), owner)

	if _, err := svc.Reject(context.Background(), owner, presc.ID, "   "); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if len(repo.regras) != 0 {
		t.Fatalf("observação vazia não grava regras: %v", repo.regras)
	}
}

func TestRejectWithObservationIsAtomic(t *testing.T) {
	owner := uuid.New()
	presc := Prescricao{ID: uuid.New(), Identificacao: owner, Status: StatusPendente}
	repo := &stubRepo{prescricoes: []Prescricao{presc}, regrasErr: errors.New("banco fora")}
	queue := &stubQueue{}
	svc := newTestService(repo, queue)
	svc.List(context.Background(), owner)

	if _, err := svc.Reject(context.Background(), owner, presc.ID, "refazer"); err == nil {
		t.Fatal("falha ao gravar regras deveria subir para quem chamou")
	}
	if repo.prescricoes[0].Status != StatusPendente {
		t.Fatalf("transação desfeita não pode deixar status gravado: %q", repo.prescricoes[0].Status)
	}
	snap := svc.List(context.Background(), owner)
	if snap.Items[0].Status != StatusPendente {
		t.Fatalf("estado local divergiu do backend após falha: %+v", snap.Items)
	}
	if len(queue.payloads) != 0 {
		t.Fatal("falha de escrita não pode disparar webhook")
	}
}

func TestFailedWriteDoesNotCommitLocally(t *testing.T) {
	owner := uuid.New()
	presc := Prescricao{ID: uuid.New(), Identificacao: owner, Status: StatusPendente}
	repo := &stubRepo{prescricoes: []Prescricao{presc}, updateErr: errors.New("banco fora")}
	svc := newTestService(repo, &stubQueue{})
	svc.List(context.Background(), owner)

	if _, err := svc.Approve(context.Background(), owner, presc.ID); err == nil {
		t.Fatal("falha de escrita deveria subir para quem chamou")
	}
	snap := svc.List(context.Background(), owner)
	if snap.Items[0].Status != StatusPendente {
		t.Fatalf("falha de escrita não pode comitar otimista: %+v", snap.Items)
	}
}

func TestTransitionScopedToOwner(t *testing.T) {
	ownerA := uuid.New()
	ownerB := uuid.New()
	presc := Prescricao{ID: uuid.New(), Identificacao: ownerB, Status: StatusPendente}
	repo := &stubRepo{prescricoes: []Prescricao{presc}}
	svc := newTestService(repo, &stubQueue{})

	if _, err := svc.Approve(context.Background(), ownerA, presc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("aprovar prescrição de outra dona deveria dar ErrNotFound, veio %v", err)
	}
}

func TestTransitionWithoutBackendFails(t *testing.T) {
	queue := &stubQueue{}
	svc := NewService(nil, nil, nil, queue, []string{"http://teste"}, nil, zerolog.New(io.Discard))

	_, err := svc.Approve(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("sem backend a transição deveria dar ErrBackendUnavailable, veio %v", err)
	}
	if len(queue.payloads) != 0 {
		t.Fatal("modo degradado não pode disparar webhook")
	}
}

func TestBuildStatsCountsByStatusAndWindow(t *testing.T) {
	// Quarta-feira; semana começa na segunda 09/03, mês em 01/03.
	now := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)

	items := []Prescricao{
		{Status: StatusAprovada, CriadoEm: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)},
		{Status: StatusPendente, CriadoEm: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)},
		{Status: StatusRefazendo, CriadoEm: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)},
	}

	stats := BuildStats(items, now)
	if stats.Total != 3 || stats.Aprovadas != 1 || stats.Pendentes != 1 || stats.Refazendo != 1 {
		t.Fatalf("contagens por status erradas: %+v", stats)
	}
	if stats.Semana != 1 {
		t.Fatalf("janela semanal errada: %+v", stats)
	}
	if stats.Mes != 2 {
		t.Fatalf("janela mensal errada: %+v", stats)
	}
}
