package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/moltasthornblom/beam/core/auth"
	"github.com/moltasthornblom/beam/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListStreamsEmpty(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("viewer", auth.RoleViewer)

	rec := env.do(http.MethodGet, "/stream/streams", token, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No videos found for this user", decodeMessage(t, rec))
}

func TestListStreamsOwnAssetsOnly(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.user("uploader", auth.RoleUploader)
	other, _ := env.user("other", auth.RoleUploader)
	for i := 0; i < 3; i++ {
		env.accept(owner)
	}
	env.accept(other)

	rec := env.do(http.MethodGet, "/stream/streams", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var assets []model.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assets))
	assert.Len(t, assets, 3)
	for _, a := range assets {
		assert.Equal(t, owner, a.OwnerID)
	}

	rec = env.do(http.MethodGet, "/stream/streams?limit=2", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assets))
	assert.Len(t, assets, 2)
}

func TestListStreamsLimitValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("viewer", auth.RoleViewer)

	rec := env.do(http.MethodGet, "/stream/streams?limit=abc", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{`"limit" must be a number`}, decodeErrors(t, rec))

	rec = env.do(http.MethodGet, "/stream/streams?limit=101", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{`"limit" must be less than or equal to 100`}, decodeErrors(t, rec))

	rec = env.do(http.MethodGet, "/stream/streams?limit=-1", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{`"limit" must be greater than or equal to 1`}, decodeErrors(t, rec))
}
