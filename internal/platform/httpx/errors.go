package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the transport layer. Domain packages translate their
// own errors first and fall back to these.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

var transportErrors = []struct {
	err    error
	status int
	title  string
}{
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrNotFound, http.StatusNotFound, "Not Found"},
}

// RespondError writes err as an RFC7807 problem. Unknown errors become a 500
// without detail so internals never leak.
func RespondError(w http.ResponseWriter, err error) {
	for _, te := range transportErrors {
		if errors.Is(err, te.err) {
			Problem(w, te.status, te.title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
