package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeSurvivesWrapping(t *testing.T) {
	base := StaleVersion(3, 4)
	wrapped := fmt.Errorf("approve item: %w", base)

	assert.True(t, IsCode(wrapped, CodeStaleVersion))
	assert.Equal(t, http.StatusPreconditionFailed, HTTPStatus(wrapped))
	assert.Equal(t, int64(4), GetMetadata(wrapped)["current_version"])
}

func TestUnknownErrorsMapTo500(t *testing.T) {
	err := errors.New("db down")
	assert.Equal(t, CodeUnknown, GetCode(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Nil(t, GetMetadata(err))
}

func TestHTTPStatusTable(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidTransition, http.StatusConflict},
		{CodeStaleVersion, http.StatusPreconditionFailed},
		{CodeForbidden, http.StatusForbidden},
		{CodeModeBlocked, http.StatusLocked},
		{CodeNotFound, http.StatusNotFound},
		{CodeValidation, http.StatusBadRequest},
		{CodeCancelIncomplete, http.StatusMultiStatus},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeUnknown, "load item", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "load item: connection reset", err.Error())
}

func TestInvalidTransitionNamesStates(t *testing.T) {
	err := InvalidTransition("draft", "approved", "approve")
	assert.Contains(t, err.Error(), "draft -> approved")
	assert.Equal(t, "draft", err.Metadata["current_status"])
	assert.Equal(t, "approved", err.Metadata["requested_status"])
}
