package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/zknotes/internal/convert"
	"github.com/and161185/zknotes/internal/request"
	"github.com/and161185/zknotes/internal/result"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 64 << 10

const internalMessage = "An unexpected error occurred. Please try again later"

// statusFor maps a failure kind to its HTTP status.
func statusFor(k result.ErrorKind) int {
	switch k {
	case result.ErrBadRequest:
		return http.StatusBadRequest
	case result.ErrUnauthorized:
		return http.StatusUnauthorized
	case result.ErrForbidden:
		return http.StatusForbidden
	case result.ErrNotFound:
		return http.StatusNotFound
	case result.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// successStatus maps a success kind to its HTTP status.
func successStatus(k result.SuccessKind) int {
	switch k {
	case result.KindCreated:
		return http.StatusCreated
	case result.KindNoContent:
		return http.StatusNoContent
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, convert.ErrorResponse{ErrorMessage: msg})
}

// writeResult answers with res, or with a generic 500 when err is set. err is logged, never
// sent to the caller.
func writeResult[T, R any](w http.ResponseWriter, r *http.Request, log *zap.Logger, res result.Result[T], err error, encode func(T) R) {
	if err != nil {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, internalMessage)
		return
	}
	if !res.IsSuccess() {
		writeError(w, statusFor(res.ErrorKind()), res.Message())
		return
	}
	status := successStatus(res.SuccessKind())
	v, ok := res.Value()
	if !ok {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, encode(v))
}

// decodeBody reads a single JSON object. Unknown fields, trailing data and oversized bodies
// are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("trailing data")
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusBadRequest, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return false
	}
	return true
}

// writeValidation answers 400 for input validation errors.
func writeValidation(w http.ResponseWriter, err error) {
	var ve *request.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, ve.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request")
}
