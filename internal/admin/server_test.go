package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofatutor/debugproxy/internal/config"
	"github.com/sofatutor/debugproxy/internal/recorder"
)

type fakeAssets map[string][]byte

func (f fakeAssets) Asset(name string) ([]byte, bool) {
	data, ok := f[name]
	return data, ok
}

func newTestServer(t *testing.T, assets AssetProvider) (*Server, *config.Store, string) {
	t.Helper()
	cfg := config.NewDefault()
	store := config.NewStore(cfg)
	rec := recorder.New(cfg.MaxHistorySize)
	s := NewServer(store, rec, assets, nil)
	return s, store, cfg.AccessToken
}

func TestServer_TokenGate_RejectsMissingToken(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/_proxy/api/config", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_TokenGate_RejectsWrongToken(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/_proxy/api/config?token=nope", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_TokenGate_AcceptsCorrectToken(t *testing.T) {
	s, _, token := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/_proxy/api/config?token="+token, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Assets_AreUnauthenticated(t *testing.T) {
	assets := fakeAssets{"assets/app.js": []byte("console.log('hi')")}
	s, _, _ := newTestServer(t, assets)
	req := httptest.NewRequest(http.MethodGet, "/_proxy/assets/app.js", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log('hi')", w.Body.String())
}

func TestServer_Assets_UnknownAssetIs404(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/_proxy/assets/missing.js", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_UI_FallsBackToInlinePage(t *testing.T) {
	s, _, token := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/_proxy?token="+token, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Admin Interface")
}

func TestServer_UI_ServesEmbeddedIndex(t *testing.T) {
	assets := fakeAssets{"index.html": []byte("<html>real ui</html>")}
	s, _, token := newTestServer(t, assets)
	req := httptest.NewRequest(http.MethodGet, "/_proxy/?token="+token, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, "<html>real ui</html>", w.Body.String())
}

func TestServer_GetConfig_NeverIncludesAccessToken(t *testing.T) {
	s, _, token := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/_proxy/api/config?token="+token, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "access_token")
	assert.NotContains(t, w.Body.String(), token)
	assert.Contains(t, w.Body.String(), "upstream_timeout_ms")
}

func TestServer_UpdateConfig_AppliesAndResizesRecorder(t *testing.T) {
	s, store, token := newTestServer(t, nil)
	for _, p := range []string{"/a", "/b", "/c"} {
		s.recorder.RecordRequest(recorder.RequestInfo{Method: "GET", Path: p, Version: "HTTP/1.1"})
	}
	body := `{"max_history_size": 2, "truncate_body_at": 42}`
	req := httptest.NewRequest(http.MethodPost, "/_proxy/api/config?token="+token, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	snap := store.Snapshot()
	assert.Equal(t, 2, snap.MaxHistorySize)
	assert.Equal(t, 42, snap.TruncateBodyAt)

	logs := s.recorder.Snapshot()
	require.Len(t, logs, 2)
	assert.Equal(t, "/b", logs[0].Request.Path)
	assert.Equal(t, "/c", logs[1].Request.Path)
}

func TestServer_UpdateConfig_CannotOverrideAccessToken(t *testing.T) {
	s, store, token := newTestServer(t, nil)
	body := `{"access_token": "hijacked", "max_body_size": 10}`
	req := httptest.NewRequest(http.MethodPost, "/_proxy/api/config?token="+token, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, token, store.AccessToken())
}

func TestServer_UpdateConfig_InvalidJSONIs400(t *testing.T) {
	s, _, token := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/_proxy/api/config?token="+token, strings.NewReader("not json"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid configuration")
}

func TestServer_Logs_GetAndClear(t *testing.T) {
	s, _, token := newTestServer(t, nil)
	rec := recorder.New(100)
	s.recorder = rec
	rec.RecordRequest(recorder.RequestInfo{Method: "GET", Path: "/x", Version: "HTTP/1.1"})

	req := httptest.NewRequest(http.MethodGet, "/_proxy/api/logs?token="+token, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"path":"/x"`)

	delReq := httptest.NewRequest(http.MethodDelete, "/_proxy/api/logs?token="+token, nil)
	delW := httptest.NewRecorder()
	s.ServeHTTP(delW, delReq)
	assert.Equal(t, http.StatusOK, delW.Code)
	assert.Empty(t, rec.Snapshot())
}

func TestServer_UnknownAdminPathIs404(t *testing.T) {
	s, _, token := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/_proxy/nope?token="+token, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
