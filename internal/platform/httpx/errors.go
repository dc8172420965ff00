package httpx

import (
	"net/http"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// StatusFor maps an error kind to the HTTP status surfaced to clients.
func StatusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindInvalidArgument:
		return http.StatusBadRequest
	case shared.KindInvalidTransition:
		return http.StatusConflict
	case shared.KindInsufficientStock:
		return http.StatusUnprocessableEntity
	case shared.KindConflictRetryable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Unclassified
// errors are reported without detail.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := shared.KindOf(err)
	switch status {
	case http.StatusInternalServerError:
		Problem(w, status, "Internal Error", "")
		return
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	ProblemWithType(w, status, kind.String(), http.StatusText(status), err.Error())
}
