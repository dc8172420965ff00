package audithttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockflow/internal/audit"
)

type stubTimelineService struct {
	result      audit.Result
	err         error
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, s.err
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	return r
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	svc := &stubTimelineService{result: audit.Result{
		Rows:   []audit.TimelineRow{{ID: 9, Action: "inventory:adjust", Entity: "inventory", EntityID: "1:1"}},
		Paging: audit.PagingInfo{Page: 1, PageSize: 20},
	}}
	h := NewHandler(nil, svc, 0)
	h.now = fixedNow

	rr := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/timeline?entity=inventory&action=inventory:&actor_id=7", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := svc.lastFilters.From.Format("2006-01-02"); got != "2024-03-08" {
		t.Fatalf("expected default from 2024-03-08, got %s", got)
	}
	if got := svc.lastFilters.To.Format("2006-01-02"); got != "2024-03-15" {
		t.Fatalf("expected default to 2024-03-15, got %s", got)
	}
	if svc.lastFilters.ActorID == nil || *svc.lastFilters.ActorID != 7 {
		t.Fatalf("expected actor filter 7, got %v", svc.lastFilters.ActorID)
	}
	if svc.lastFilters.Entity != "inventory" || svc.lastFilters.Action != "inventory:" {
		t.Fatalf("unexpected filters %+v", svc.lastFilters)
	}

	var body audit.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Rows) != 1 || body.Rows[0].EntityID != "1:1" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	h := NewHandler(nil, &stubTimelineService{}, 0)
	h.now = fixedNow
	router := newRouter(h)

	for _, query := range []string{
		"from=2024-13-01",
		"to=yesterday",
		"from=2024-03-10&to=2024-03-01",
		"from=2023-01-01&to=2024-03-01",
		"actor_id=-1",
		"page=0",
		"page_size=abc",
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/timeline?"+query, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rr.Code)
		}
	}
}

func TestTimelineServiceFailure(t *testing.T) {
	h := NewHandler(nil, &stubTimelineService{err: errors.New("db down")}, 0)
	rr := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/timeline", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestTimelineRateLimited(t *testing.T) {
	h := NewHandler(nil, &stubTimelineService{}, 1)
	router := newRouter(h)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/timeline", nil))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}
