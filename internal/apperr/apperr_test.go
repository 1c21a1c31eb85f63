package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	sentinel := Conflict("WRONG_TURN", "not your turn")
	wrapped := fmt.Errorf("ban: %w", Conflict("WRONG_TURN", "other message"))

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, Conflict("LOBBY_FULL", "lobby is full")))
}

func TestKindOfAndStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{"validation", Validation("PARTY_SIZE", "bad size"), KindValidation, http.StatusBadRequest},
		{"conflict", Conflict("RESULT_REVIEWED", "reviewed"), KindConflict, http.StatusConflict},
		{"not found", NotFound("LOBBY_NOT_FOUND", "missing"), KindNotFound, http.StatusNotFound},
		{"forbidden", Forbidden("ROLE", "moderators only"), KindForbidden, http.StatusForbidden},
		{"dependency", Dependency("db", errors.New("conn refused")), KindDependency, http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
			assert.Equal(t, tc.status, HTTPStatus(KindOf(tc.err)))
		})
	}
}

func TestDependencyIsRetryableAndUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Dependency("profile store", cause)

	assert.True(t, Retryable(KindOf(err)))
	assert.False(t, Retryable(KindConflict))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "profile store: dial tcp: refused", err.Error())
}

func TestPublicHidesCauses(t *testing.T) {
	code, msg := Public(Dependency("profile store", errors.New("password=hunter2")))
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", code)
	assert.Equal(t, "profile store", msg)

	code, msg = Public(fmt.Errorf("load: %w", NotFound("LOBBY_NOT_FOUND", "lobby not found")))
	assert.Equal(t, "LOBBY_NOT_FOUND", code)
	assert.Equal(t, "lobby not found", msg)

	code, msg = Public(errors.New("nil pointer"))
	assert.Equal(t, "INTERNAL", code)
	assert.Equal(t, "internal error", msg)
}
