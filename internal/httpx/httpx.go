package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/pkg/i18n"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

const maxBodyBytes = 1 << 20

type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type ListBody[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Responder renders JSON bodies and maps domain errors to localized
// responses based on Accept-Language.
type Responder struct {
	tr       *i18n.Translator
	log      logger.ZapLogger
	validate *validator.Validate
}

func NewResponder(tr *i18n.Translator, log logger.ZapLogger) *Responder {
	return &Responder{tr: tr, log: log, validate: validator.New()}
}

func (rs *Responder) JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.log.Error("failed to encode response", zap.Error(err))
	}
}

// Message localizes a kind for the caller's language.
func (rs *Responder) Message(r *http.Request, kind apperror.Kind, data map[string]any) string {
	if rs.tr == nil {
		return string(kind)
	}
	return rs.tr.T(r.Header.Get("Accept-Language"), string(kind), data)
}

func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperror.Classify(err)
	status := apperror.HTTPStatus(ae.Kind)

	body := ErrorBody{
		Error:   string(ae.Kind),
		Message: rs.Message(r, ae.Kind, ae.Data),
	}
	if status < http.StatusInternalServerError {
		body.Detail = ae.Detail
		rs.log.Debug("request rejected", zap.String("path", r.URL.Path), zap.String("kind", string(ae.Kind)), zap.Error(err))
	} else {
		rs.log.Error("request failed", zap.String("path", r.URL.Path), zap.String("kind", string(ae.Kind)), zap.Error(err))
	}
	rs.JSON(w, status, body)
}

// Decode reads a JSON body into dst and runs struct validation.
func (rs *Responder) Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.New(apperror.KindValidationFailed, "request body is empty")
		}
		return apperror.Wrap(apperror.KindValidationFailed, err, "invalid json")
	}
	return rs.Validate(dst)
}

func (rs *Responder) Validate(v any) error {
	if err := rs.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			return apperror.New(apperror.KindValidationFailed, strings.Join(fields, ", "))
		}
		return apperror.Wrap(apperror.KindValidationFailed, err, "")
	}
	return nil
}

// Pagination reads page and pageSize, defaulting to 1 and 20 and capping at 100.
func Pagination(r *http.Request) (page, pageSize int) {
	page = QueryInt(r, "page", 1)
	pageSize = QueryInt(r, "pageSize", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func QueryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func QueryFloat(r *http.Request, key string) (float64, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func QueryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
