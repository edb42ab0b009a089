package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"geoattend/internal/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.InvalidCredentials:  http.StatusUnauthorized,
	apperr.DeviceConflict:      http.StatusConflict,
	apperr.DeviceMismatch:      http.StatusUnauthorized,
	apperr.WindowInactive:      http.StatusBadRequest,
	apperr.WindowNotFound:      http.StatusNotFound,
	apperr.OutOfRange:          http.StatusBadRequest,
	apperr.DuplicateAttendance: http.StatusConflict,
	apperr.AlreadyRegistered:   http.StatusBadRequest,
	apperr.IdentityNotFound:    http.StatusNotFound,
	apperr.ValidationError:     http.StatusBadRequest,
	apperr.Forbidden:           http.StatusForbidden,
	apperr.Internal:            http.StatusInternalServerError,
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind apperr.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.Internal {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Str("request_id", c.GetString("request_id")).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": apperr.Internal, "message": "internal server error"})
		return
	}
	body := gin.H{"error": e.Kind, "message": e.Message}
	if e.Kind == apperr.OutOfRange {
		body["distance_meters"] = e.DistanceMeters
		body["radius_meters"] = e.RadiusMeters
	}
	c.JSON(StatusFor(e.Kind), body)
}

// writeBindError renders request binding failures as ValidationError with
// one message per offending field.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msg := fieldMessage(fe)
			fields[fe.Field()] = msg
			msgs = append(msgs, fe.Field()+" "+msg)
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   apperr.ValidationError,
			"message": strings.Join(msgs, "; "),
			"fields":  fields,
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": apperr.ValidationError, "message": "malformed request body"})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}
