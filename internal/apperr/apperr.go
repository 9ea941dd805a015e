// Package apperr categorizes the error conditions named in spec §7
// (parse failures, lease conflicts, arena exhaustion, wire decode
// errors, option overflow, journal I/O, DNS update failures) so the
// dispatcher boundary can log and report them uniformly. Adapted from
// the teacher's internal/errors package.
package apperr

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Kind categorizes an AppError for logging and HTTP status mapping.
type Kind int

const (
	ErrParse Kind = iota
	ErrLeaseConflict
	ErrOutOfMemory
	ErrWireDecode
	ErrOptionOverflow
	ErrJournalIO
	ErrDNSUpdate
	ErrConfiguration
	ErrNetwork
)

func (k Kind) String() string {
	switch k {
	case ErrParse:
		return "parse"
	case ErrLeaseConflict:
		return "lease_conflict"
	case ErrOutOfMemory:
		return "out_of_memory"
	case ErrWireDecode:
		return "wire_decode"
	case ErrOptionOverflow:
		return "option_overflow"
	case ErrJournalIO:
		return "journal_io"
	case ErrDNSUpdate:
		return "dns_update"
	case ErrConfiguration:
		return "configuration"
	case ErrNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// AppError carries the operation that failed, the underlying error,
// an HTTP status for the admin API, and optional structured context.
type AppError struct {
	Kind    Kind
	Op      string
	Err     error
	Message string
	Code    int
	Context map[string]any
}

func (e *AppError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithContext attaches a structured key/value pair for logging.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newErr(kind Kind, op string, err error, message string, code int) *AppError {
	return &AppError{Kind: kind, Op: op, Err: err, Message: message, Code: code}
}

func Parse(op string, err error) *AppError {
	return newErr(ErrParse, op, err, err.Error(), http.StatusBadRequest)
}

func LeaseConflict(op string, err error) *AppError {
	return newErr(ErrLeaseConflict, op, err, "lease already bound to another client", http.StatusConflict)
}

func OutOfMemory(op string, err error) *AppError {
	return newErr(ErrOutOfMemory, op, err, "arena exhausted", http.StatusInsufficientStorage)
}

func WireDecode(op string, err error) *AppError {
	return newErr(ErrWireDecode, op, err, "malformed wire packet", http.StatusBadRequest)
}

func OptionOverflow(op string, err error) *AppError {
	return newErr(ErrOptionOverflow, op, err, "option set exceeds reply budget", http.StatusRequestEntityTooLarge)
}

func JournalIO(op string, err error) *AppError {
	return newErr(ErrJournalIO, op, err, "lease journal I/O failed", http.StatusInternalServerError)
}

func DNSUpdate(op string, err error) *AppError {
	return newErr(ErrDNSUpdate, op, err, "dynamic DNS update failed", http.StatusBadGateway)
}

func Configuration(op string, err error) *AppError {
	return newErr(ErrConfiguration, op, err, "configuration error", http.StatusInternalServerError)
}

func Network(op string, err error) *AppError {
	return newErr(ErrNetwork, op, err, "network operation failed", http.StatusServiceUnavailable)
}

// Log logs an AppError with its kind, operation, and any attached
// context, at the dispatcher boundary per spec §7's propagation
// policy.
func Log(logger *slog.Logger, err *AppError) {
	args := []any{
		slog.String("kind", err.Kind.String()),
		slog.String("op", err.Op),
	}
	for k, v := range err.Context {
		args = append(args, slog.Any(k, v))
	}
	logger.Error(err.Message, args...)
}

// HandleHTTP writes the AppError (or a generic 500 for an unknown
// error) to w and logs it.
func HandleHTTP(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *AppError
	if As(err, &appErr) {
		Log(logger, appErr)
		http.Error(w, appErr.Message, appErr.Code)
		return
	}
	logger.Error("unhandled error", slog.String("error", err.Error()))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// As extracts an *AppError from err, if it is one.
func As(err error, target **AppError) bool {
	if appErr, ok := err.(*AppError); ok {
		*target = appErr
		return true
	}
	return false
}

// Wrap re-tags err under a new operation name, preserving its kind and
// context when it is already an AppError.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if As(err, &appErr) {
		return &AppError{
			Kind:    appErr.Kind,
			Op:      op + " -> " + appErr.Op,
			Err:     appErr.Err,
			Message: appErr.Message,
			Code:    appErr.Code,
			Context: appErr.Context,
		}
	}
	return newErr(ErrParse, op, err, "operation failed", http.StatusInternalServerError)
}
