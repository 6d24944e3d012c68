package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/nimbuslab/crewbase/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLoginMe(t *testing.T) {
	e := newTestEnv(t)

	_, token := e.signup("alice@example.com")

	w := e.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice@example.com", jsonField(w, "email").String())
	// the password hash never leaves the server
	assert.NotContains(t, w.Body.String(), "passwordHash")

	w = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "s3cretpass",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, jsonField(w, "token").String())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e := newTestEnv(t)
	e.signup("alice@example.com")

	w := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "alice@example.com",
		"password": "anotherpass",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEmailCasingIsNormalized(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "Alice@Example.COM",
		"password": "s3cretpass",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice@example.com", jsonField(w, "user.email").String())

	// login matches regardless of the casing the client sends
	w = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ALICE@example.com",
		"password": "s3cretpass",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// a differently cased registration is still the same address
	w = e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "alice@EXAMPLE.com",
		"password": "anotherpass",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "not-an-email",
		"password": "s3cretpass",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "short@example.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterSendsWelcomeMail(t *testing.T) {
	e := newTestEnv(t)
	e.signup("alice@example.com")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.mailer.mu.Lock()
		n := len(e.mailer.sent)
		e.mailer.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	e.mailer.mu.Lock()
	defer e.mailer.mu.Unlock()
	require.Len(t, e.mailer.sent, 1)
	assert.Equal(t, notify.TemplateWelcome, e.mailer.sent[0].Template)
	assert.Equal(t, "alice@example.com", e.mailer.sent[0].To)
}

func TestLoginWrongPassword(t *testing.T) {
	e := newTestEnv(t)
	e.signup("alice@example.com")

	w := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrongpass1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// unknown email gets the same answer
	w = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "wrongpass1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChangePassword(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.signup("alice@example.com")

	w := e.do(http.MethodPost, "/api/auth/password", token, map[string]string{
		"currentPassword": "wrong",
		"newPassword":     "n3wpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/auth/password", token, map[string]string{
		"currentPassword": "s3cretpass",
		"newPassword":     "n3wpassword",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "n3wpassword",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateProfileTheme(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.signup("alice@example.com")

	w := e.do(http.MethodPut, "/api/auth/me", token, map[string]string{"theme": "dark"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dark", jsonField(w, "theme").String())

	w = e.do(http.MethodPut, "/api/auth/me", token, map[string]string{"theme": "neon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodGet, "/api/teams", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", jsonField(w, "status").String())
}
