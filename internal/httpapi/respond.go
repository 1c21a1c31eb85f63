package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/pkg/types"
)

const maxJSONBody = 1 << 20

var errBadJSON = apperr.Validation("INVALID_JSON", "request body is not valid json")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the taxonomy status and the error envelope.
// Unclassified errors are logged and reported as internal.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindInternal:
		log.Error("request failed", zap.Error(err))
	case apperr.KindDependency:
		log.Warn("dependency unavailable", zap.Error(err))
	}
	code, msg := apperr.Public(err)
	writeJSON(w, apperr.HTTPStatus(kind), types.ErrorBody{Error: types.ErrorDetail{
		Code:      code,
		Message:   msg,
		Retryable: apperr.Retryable(kind),
	}})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.KindValidation, errBadJSON.Code, errBadJSON.Message, err)
	}
	return nil
}
