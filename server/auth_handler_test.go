package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/moltasthornblom/beam/core/auth"
	"github.com/moltasthornblom/beam/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeChecks(t *testing.T) {
	env := newTestEnv(t)
	_, viewer := env.user("viewer", auth.RoleViewer)
	noRole, err := env.accounts.Tokens().GenerateToken("u-1", "ghost", "")
	require.NoError(t, err)

	cases := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header is required"},
		{"not bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "Authorization header is required"},
		{"bad token", "Bearer not.a.token", http.StatusUnauthorized, "Invalid token"},
		{"no role", "Bearer " + noRole, http.StatusUnauthorized, "Unauthorized: No role found"},
		{"insufficient scope", "Bearer " + viewer, http.StatusForbidden, "Forbidden: Insufficient scope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := multipartBody(t, "video", []byte("data"))
			req := httptest.NewRequest(http.MethodPost, "/videos/upload", body)
			req.Header.Set("Content-Type", contentType)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, decodeMessage(t, rec))
		})
	}
	assert.Zero(t, env.submitter.count())
}

func TestAccessTokenQueryOnlyForWebsocket(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/videos/x/events?access_token=abc", nil)
	_, ok := bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Upgrade", "websocket")
	token, ok := bearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.user("alice", auth.RoleUploader)

	rec := env.postJSON("/auth/login", "", map[string]string{"username": " alice ", "password": "password1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := env.accounts.Tokens().ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, auth.RoleUploader, claims.Role)

	rec = env.postJSON("/auth/login", "", map[string]string{"username": "alice", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid username or password", decodeMessage(t, rec))

	rec = env.postJSON("/auth/login", "", map[string]string{"username": "nobody", "password": "password1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON("/auth/login", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{`"password" is required`}, decodeErrors(t, rec))

	rec = env.do(http.MethodPost, "/auth/login", "", bytesReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"request body must be valid JSON"}, decodeErrors(t, rec))
}

func TestLoginUnverified(t *testing.T) {
	env := newTestEnv(t)
	hash, err := auth.HashPassword("password1")
	require.NoError(t, err)
	require.NoError(t, env.users.Create(context.Background(), &model.User{
		Username:     "pending",
		PasswordHash: hash,
		Role:         auth.RoleViewer,
	}))

	rec := env.postJSON("/auth/login", "", map[string]string{"username": "pending", "password": "password1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "User is not verified", decodeMessage(t, rec))
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	_, admin := env.user("admin", auth.RoleAdmin)
	_, uploader := env.user("uploader", auth.RoleUploader)

	rec := env.postJSON("/auth/register", admin, map[string]string{"username": "bob", "password": "secret99", "role": auth.RoleUploader})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User registered successfully", decodeMessage(t, rec))

	bob, err := env.users.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUploader, bob.Role)
	assert.True(t, bob.IsVerified)

	rec = env.postJSON("/auth/register", admin, map[string]string{"username": "bob", "password": "secret99"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.postJSON("/auth/register", uploader, map[string]string{"username": "carol", "password": "secret99"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	_, admin := env.user("admin", auth.RoleAdmin)

	rec := env.postJSON("/auth/register", admin, map[string]string{"username": "al", "password": "123", "role": "root"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t, []string{
		`"username" length must be at least 3 characters long`,
		`"password" length must be at least 6 characters long`,
		`"role" must be one of [ADMIN, UPLOADER, viewer]`,
	}, decodeErrors(t, rec))
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("dave", auth.RoleViewer)

	rec := env.postJSON("/auth/change-password", token, map[string]string{"currentPassword": "nope", "newPassword": "fresh-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Current password is incorrect", decodeMessage(t, rec))

	rec = env.postJSON("/auth/change-password", token, map[string]string{"currentPassword": "password1", "newPassword": "fresh-pass"})
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := env.accounts.Login(context.Background(), "dave", "fresh-pass")
	assert.NoError(t, err)

	rec = env.postJSON("/auth/change-password", "", map[string]string{"currentPassword": "fresh-pass", "newPassword": "other-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
