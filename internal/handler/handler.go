package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/certs"
	"github.com/YannKr/certstamp/internal/config"
	"github.com/YannKr/certstamp/internal/diskstat"
	"github.com/YannKr/certstamp/internal/sse"
	"github.com/YannKr/certstamp/internal/templates"
	"github.com/YannKr/certstamp/internal/verify"
	"github.com/YannKr/certstamp/internal/worker"
)

// maxJSONBody bounds JSON request bodies; uploads use Cfg.MaxUploadBytes.
const maxJSONBody = 1 << 20

type Handler struct {
	DB        *sql.DB
	Cfg       *config.Config
	Templates *templates.Service
	Certs     *certs.Service
	Verify    *verify.Service
	Batches   *worker.Pool
	SSE       *sse.Hub
	DiskCache *diskstat.Cache
	validate  *validator.Validate
}

func New(database *sql.DB, cfg *config.Config, tpl *templates.Service, cs *certs.Service, vs *verify.Service, pool *worker.Pool, sseHub *sse.Hub) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		DB:        database,
		Cfg:       cfg,
		Templates: tpl,
		Certs:     cs,
		Verify:    vs,
		Batches:   pool,
		SSE:       sseHub,
		validate:  v,
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func renderJSONError(w http.ResponseWriter, status int, code, message string) {
	renderJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// renderError maps err onto the error taxonomy. Server-side failures are
// logged with their cause; the caller only sees the public message.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	body := errorBody{Error: errorDetail{Code: apperr.CodeOf(err), Message: apperr.PublicMessage(err)}}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		body.Error.Details = formatValidationErrors(ve)
	}
	renderJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into v and runs struct validation.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	ok, err := h.decodeOptionalJSON(w, r, v)
	if err == nil && !ok {
		return apperr.ErrInvalidInput.WithMessage("request body is empty")
	}
	return err
}

// decodeOptionalJSON reports whether the request carried a body. An absent
// or empty body is not an error, whatever its Content-Length.
func (h *Handler) decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) (bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return false, nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, apperr.ErrInvalidInput.WithMessage("invalid JSON: %v", err)
	}
	return true, h.check(v)
}

func (h *Handler) check(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.ErrInvalidInput.Wrap(err)
	}
	msgs := formatValidationErrors(ve)
	for _, fe := range ve {
		if fe.Tag() == "required" {
			return apperr.ErrMissingField.Wrap(ve).WithMessage("%s", strings.Join(msgs, "; "))
		}
	}
	return apperr.ErrInvalidInput.Wrap(ve).WithMessage("%s", strings.Join(msgs, "; "))
}

func formatValidationErrors(ve validator.ValidationErrors) []string {
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, fe.Param())
		}
		out = append(out, msg)
	}
	return out
}

// pagination reads offset and limit query parameters.
func pagination(r *http.Request, defLimit, maxLimit int) (offset, limit int) {
	limit = defLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return offset, limit
}
