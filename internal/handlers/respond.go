package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"frameworks/herald/internal/access"
	"frameworks/herald/internal/apperr"
	"frameworks/herald/pkg/ctxkeys"
	"frameworks/herald/pkg/logging"
	"frameworks/herald/pkg/middleware"
)

// actorFrom builds the caller identity set by the JWT middleware. An unknown
// role is reported as forbidden rather than unauthenticated since the token
// itself was valid.
func actorFrom(c *gin.Context) (access.Actor, error) {
	id := c.GetString(string(ctxkeys.KeyUserID))
	role, err := access.ParseRole(c.GetString(string(ctxkeys.KeyRole)))
	if err != nil {
		return access.Actor{}, apperr.New(apperr.CodeForbidden, err.Error())
	}
	return access.Actor{ID: id, Role: role}, nil
}

func errorBody(err error) gin.H {
	code := apperr.GetCode(err)
	msg := err.Error()
	if code == apperr.CodeUnknown {
		msg = "internal server error"
	}
	details := apperr.GetMetadata(err)
	if details == nil {
		details = map[string]any{}
	}
	return gin.H{
		"error":   msg,
		"code":    string(code),
		"details": details,
	}
}

// respondError writes the error body with the status mapped from its code.
func respondError(c *gin.Context, logger logging.Logger, err error) {
	status := apperr.HTTPStatus(err)
	entry := middleware.GetContextLogger(c, logger).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.WithField("code", apperr.GetCode(err)).Debug("Request rejected")
	}
	c.JSON(status, errorBody(err))
}

func badRequest(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, errorBody(apperr.Validation(field, msg)))
}
