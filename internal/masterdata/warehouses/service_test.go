package warehouses

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/odyssey-erp/stockflow/internal/masterdata/shared"
	internalShared "github.com/odyssey-erp/stockflow/internal/shared"
)

type stubRepo struct {
	rows        map[int64]Warehouse
	nextID      int64
	lastFilters shared.ListFilters
}

func newStubRepo() *stubRepo {
	return &stubRepo{rows: map[int64]Warehouse{}}
}

func (s *stubRepo) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	s.lastFilters = filters
	var out []Warehouse
	for _, w := range s.rows {
		if w.IsActive || filters.IncludeInactive {
			out = append(out, w)
		}
	}
	return out, len(out), nil
}

func (s *stubRepo) Get(ctx context.Context, id int64) (Warehouse, error) {
	w, ok := s.rows[id]
	if !ok {
		return Warehouse{}, shared.ErrNotFound
	}
	return w, nil
}

func (s *stubRepo) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	s.nextID++
	w.ID = s.nextID
	w.IsActive = true
	s.rows[w.ID] = w
	return w, nil
}

func (s *stubRepo) Deactivate(ctx context.Context, id int64) error {
	w, ok := s.rows[id]
	if !ok {
		return shared.ErrNotFound
	}
	w.IsActive = false
	s.rows[id] = w
	return nil
}

func TestCreateNormalizesAndValidates(t *testing.T) {
	svc := NewService(newStubRepo())
	ctx := context.Background()

	w, err := svc.Create(ctx, Warehouse{Name: "  Central  ", Location: " Jakarta "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.Name != "Central" || w.Location != "Jakarta" {
		t.Fatalf("expected trimmed fields, got %q %q", w.Name, w.Location)
	}

	_, err = svc.Create(ctx, Warehouse{Name: "   "})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if internalShared.KindOf(err) != internalShared.KindInvalidArgument {
		t.Fatalf("expected invalid argument kind, got %v", internalShared.KindOf(err))
	}

	_, err = svc.Create(ctx, Warehouse{Name: strings.Repeat("x", 121)})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected length validation error, got %v", err)
	}
}

func TestDeactivateHidesFromDefaultList(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a, _ := svc.Create(ctx, Warehouse{Name: "A"})
	_, _ = svc.Create(ctx, Warehouse{Name: "B"})
	if err := svc.Deactivate(ctx, a.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	rows, total, err := svc.List(ctx, shared.ListFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || rows[0].Name != "B" {
		t.Fatalf("expected only B, got %+v", rows)
	}

	got, err := svc.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get deactivated: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expected inactive warehouse")
	}
}

func TestGetAndDeactivateUnknown(t *testing.T) {
	svc := NewService(newStubRepo())
	ctx := context.Background()

	if _, err := svc.Get(ctx, 0); !errors.Is(err, shared.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if _, err := svc.Get(ctx, 42); internalShared.KindOf(err) != internalShared.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.Deactivate(ctx, 42); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
