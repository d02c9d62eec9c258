// Error translation for the admin API.

package admin

import (
	"errors"
	"net/http"

	"github.com/ykagano/wiremock-jp/pkg/httputil"
	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
	"github.com/ykagano/wiremock-jp/pkg/wiremock"
)

// Error codes that are not sync kinds.
const (
	codeInvalidRequest = "invalid_request"
	codeValidation     = "validation_error"
	codeConflict       = "conflict"
	codeInternal       = "internal_error"
)

// ErrMsgInternalError is returned instead of the details of unexpected
// local failures, which are only logged.
const ErrMsgInternalError = "An internal error occurred"

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, syncer.ErrPartialReconciliation):
		return http.StatusInternalServerError, string(syncer.KindPartialReconciliation)
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, string(syncer.KindNotFound)
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict, codeConflict
	case isValidation(err):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, wiremock.ErrUnavailable):
		return http.StatusBadGateway, string(syncer.KindUnavailable)
	case errors.Is(err, wiremock.ErrRejected):
		return http.StatusBadGateway, string(syncer.KindRejected)
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func isValidation(err error) bool {
	return errors.Is(err, stub.ErrInvalidMapping) ||
		errors.Is(err, stub.ErrNameRequired) ||
		errors.Is(err, stub.ErrProjectRequired) ||
		errors.Is(err, stub.ErrInvalidURL) ||
		errors.Is(err, store.ErrInvalidID)
}

// writeErr answers with the status matching err. Unclassified errors are
// logged with op and answered with a generic message.
func (a *API) writeErr(w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	if code == codeInternal {
		a.log.Error("operation failed", "operation", op, "error", err)
		httputil.WriteInternalError(w, code, ErrMsgInternalError)
		return
	}

	var se *syncer.SyncError
	if errors.As(err, &se) && se.RemoteID != "" {
		httputil.WriteErrorWithDetails(w, status, code, err.Error(), map[string]string{"remoteId": se.RemoteID})
		return
	}
	httputil.WriteError(w, status, code, err.Error())
}
