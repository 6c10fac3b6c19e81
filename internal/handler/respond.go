package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"backoffice/internal/logger"
	"backoffice/internal/middleware"
	"backoffice/internal/policy"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// debug exposes internal error detail in 500 responses.
var debug bool

// SetDebug toggles APP_DEBUG behaviour for error responses.
func SetDebug(on bool) { debug = on }

// RegisterValidation makes binding errors report json field names.
func RegisterValidation() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

// actor returns the authenticated actor or writes a 401.
func actor(c *gin.Context) (policy.Actor, bool) {
	a, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthenticated"))
	}
	return a, ok
}

// bind decodes the JSON body into req, writing 400 for malformed JSON and
// 422 with field detail for validation failures.
func bind(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationFailed(http.StatusUnprocessableEntity, fieldErrors(verrs)))
		return false
	}
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
	return false
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("may not be greater than %s characters", fe.Param())
		}
		return "may not be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "eqfield":
		return "must match " + strings.ToLower(fe.Param())
	case "url":
		return "must be a valid URL"
	}
	return "is invalid (" + fe.Tag() + ")"
}

// respondError maps service errors onto the response envelope.
func respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	var rerr *service.RuleError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, response.ValidationFailed(http.StatusUnprocessableEntity, verr.Fields))
	case errors.As(err, &rerr):
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, rerr.Message))
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	default:
		log := logger.WithComponent("http")
		log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", c.GetString("requestID")).Msg("request failed")
		msg := "Internal server error"
		if debug {
			msg = err.Error()
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, msg))
	}
}
