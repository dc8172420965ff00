package shared

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWrappedErrors(t *testing.T) {
	cases := map[Kind]error{
		KindNotFound:          fmt.Errorf("inventory: warehouse 4: %w", ErrNotFound),
		KindInvalidArgument:   fmt.Errorf("%w: delta must be non-zero", ErrInvalidArgument),
		KindInvalidTransition: fmt.Errorf("%w: completed -> approved", ErrInvalidTransition),
		KindInsufficientStock: fmt.Errorf("outer: %w", fmt.Errorf("%w: have 3", ErrInsufficientStock)),
		KindConflictRetryable: fmt.Errorf("%w: serialization failure", ErrConflictRetryable),
		KindIntegrity:         ErrIntegrity,
		KindUnknown:           fmt.Errorf("disk full"),
	}
	for want, err := range cases {
		require.Equal(t, want, KindOf(err), "%v", err)
	}
	require.Equal(t, KindUnknown, KindOf(nil))
	require.Equal(t, "insufficient_stock", KindInsufficientStock.String())
	require.Equal(t, "unknown", Kind(99).String())
}

func TestListFilterNormalize(t *testing.T) {
	require.Equal(t, ListFilter{Limit: DefaultLimit}, ListFilter{}.Normalize())
	require.Equal(t, ListFilter{Limit: MaxLimit, Offset: 0}, ListFilter{Limit: 10_000, Offset: -3}.Normalize())
	require.Equal(t, ListFilter{Limit: 5, Offset: 10}, ListFilter{Limit: 5, Offset: 10}.Normalize())

	p := NewPagination(0, 0, 45)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 3, p.TotalPages)
}

func TestActorMiddleware(t *testing.T) {
	var seen int64
	h := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFromContext(r.Context())
	}))

	for header, want := range map[string]int64{"42": 42, "": 0, "abc": 0, "-7": 0} {
		seen = -1
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(ActorHeader, header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, want, seen, "header %q", header)
	}
}

func TestAuditLogValidate(t *testing.T) {
	require.Error(t, AuditLog{Action: "inventory:adjust"}.Validate())
	require.NoError(t, AuditLog{Action: "inventory:adjust", Entity: "inventory", EntityID: "1:1"}.Validate())

	var logger *AuditLogger
	require.Error(t, logger.Record(context.Background(), AuditLog{}))
}
