package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/ayo6706/delivery-marketplace/internal/api/middleware"
	"github.com/ayo6706/delivery-marketplace/internal/api/problem"
	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// decodeJSON reads a JSON body into dst and runs struct validation. It writes
// the problem response itself and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return validateStruct(w, r, dst)
}

func validateStruct(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	params := make([]problem.InvalidParam, 0, len(verrs))
	for _, fe := range verrs {
		params = append(params, problem.InvalidParam{Name: fe.Field(), Reason: validationMessage(fe)})
	}
	problem.WriteInvalid(w, r, http.StatusBadRequest, problem.Type("request/validation-failed"), http.StatusText(http.StatusBadRequest), "request validation failed", params)
	return false
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must be numeric"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid":
		return "must be a UUID"
	default:
		return "is invalid"
	}
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok || actor.ID == uuid.Nil {
		return uuid.Nil, false, errors.New("missing actor in auth context")
	}
	return actor.ID, actor.IsAdmin(), nil
}

// actorOrAbort resolves the caller and answers 401 when the context carries none.
func actorOrAbort(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool, bool) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return uuid.Nil, false, false
	}
	return actorID, isAdmin, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func pageFromQuery(r *http.Request) service.Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return service.Page{Page: int32(page), Limit: int32(limit)}
}

// respondServiceError maps the domain error taxonomy onto HTTP problems and
// logs anything it cannot classify.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		RespondError(w, r, http.StatusBadRequest, "request/validation-failed", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		RespondError(w, r, http.StatusBadRequest, "wallet/insufficient-funds", err.Error())
	case errors.Is(err, domain.ErrInvalidCode):
		RespondError(w, r, http.StatusBadRequest, "delivery/invalid-code", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "resource/not-found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", err.Error())
	case errors.Is(err, domain.ErrNoOp):
		RespondError(w, r, http.StatusConflict, "payment/already-settled", err.Error())
	case errors.Is(err, domain.ErrConflict):
		RespondError(w, r, http.StatusConflict, "state/conflict", err.Error())
	case errors.Is(err, domain.ErrCodeLocked):
		RespondError(w, r, http.StatusTooManyRequests, "delivery/code-locked", err.Error())
	case errors.Is(err, domain.ErrWalletInactive):
		RespondError(w, r, http.StatusLocked, "wallet/inactive", err.Error())
	default:
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error(op+" failed", zap.Error(err), zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
		RespondError(w, r, http.StatusInternalServerError, "server/internal-error", "unexpected server error")
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
