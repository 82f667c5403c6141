package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/caseaudit/internal/compliance"
	"github.com/sells-group/caseaudit/internal/config"
	"github.com/sells-group/caseaudit/internal/model"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func (te *testEnv) router() http.Handler {
	return buildRouter(te.auditEnv, config.ServerConfig{EvidenceRoot: te.dir})
}

func TestRouter_Health(t *testing.T) {
	te := newTestEnv(t)
	rr := doRequest(t, te.router(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body struct {
		Status string            `json:"status"`
		Lookup map[string]string `json:"lookup"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestRouter_EvaluateThenFetchDecision(t *testing.T) {
	te := newTestEnv(t)
	h := te.router()
	m := te.completeManifest(t)

	rr := doRequest(t, h, http.MethodPost, "/v1/cases/evaluate", m)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out struct {
		Decision model.DecisionResult      `json:"decision"`
		Plan     compliance.SubmissionPlan `json:"plan"`
		RecordID string                    `json:"record_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.True(t, out.Decision.Approved)
	assert.Equal(t, compliance.ActionApprove, out.Plan.Action)
	require.NotEmpty(t, out.RecordID)

	rr = doRequest(t, h, http.MethodGet, "/v1/decisions/"+url.PathEscape(m.CaseID), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rec model.DecisionRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, out.RecordID, rec.ID)
	assert.Equal(t, "Aprovar", rec.Action)
}

func TestRouter_DecisionNotFound(t *testing.T) {
	te := newTestEnv(t)
	rr := doRequest(t, te.router(), http.MethodGet, "/v1/decisions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_DecisionStoreDisabled(t *testing.T) {
	te := newTestEnv(t)
	te.Store.Close() //nolint:errcheck
	te.Store = nil
	rr := doRequest(t, te.router(), http.MethodGet, "/v1/decisions/C1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_EvaluateBadRequests(t *testing.T) {
	te := newTestEnv(t)
	h := te.router()

	req := httptest.NewRequest(http.MethodPost, "/v1/cases/evaluate", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	m := te.completeManifest(t)
	m.Evidence = append(m.Evidence, model.EvidenceItem{DisplayName: "sem arquivo"})
	rr = doRequest(t, h, http.MethodPost, "/v1/cases/evaluate", m)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "invalid evidence", body["error"])
}

func TestRouter_ValidateProtest(t *testing.T) {
	te := newTestEnv(t)
	h := te.router()
	protest := te.doc(t, "p.txt", "Valor protestado R$ 19.000,00")
	memo := te.doc(t, "m.txt", "CT-001 4.846,53")

	rr := doRequest(t, h, http.MethodPost, "/v1/protest/validate", protestRequest{
		ProtestPath: protest, Amount: "R$ 4.846,53", MemoPath: memo,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var check compliance.ProtestCheck
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &check))
	assert.True(t, check.OK)
	assert.Equal(t, compliance.SourceMemo, check.Source)

	rr = doRequest(t, h, http.MethodPost, "/v1/protest/validate", protestRequest{ProtestPath: protest})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_EvaluateRejectsPathOutsideRoot(t *testing.T) {
	te := newTestEnv(t)
	h := te.router()
	outside := filepath.Join(t.TempDir(), "protesto.txt")
	require.NoError(t, os.WriteFile(outside, []byte("Protesto efetivado"), 0o644))

	for _, path := range []string{outside, "../" + filepath.Base(te.dir) + "-x/protesto.txt", "/etc/passwd"} {
		m := te.completeManifest(t)
		m.Evidence[1].FilePath = path

		rr := doRequest(t, h, http.MethodPost, "/v1/cases/evaluate", m)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
		assert.Contains(t, rr.Body.String(), "outside the evidence root", path)
	}

	rec, err := te.Store.LatestDecision(context.Background(), te.completeManifest(t).CaseID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRouter_EvaluateResolvesRelativePaths(t *testing.T) {
	te := newTestEnv(t)
	m := te.completeManifest(t)
	for i := range m.Evidence {
		m.Evidence[i].FilePath = filepath.Base(m.Evidence[i].FilePath)
	}

	rr := doRequest(t, te.router(), http.MethodPost, "/v1/cases/evaluate", m)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRouter_ValidateProtestRejectsPathOutsideRoot(t *testing.T) {
	te := newTestEnv(t)
	h := te.router()
	protest := te.doc(t, "p.txt", "Valor protestado R$ 4.846,53")

	rr := doRequest(t, h, http.MethodPost, "/v1/protest/validate", protestRequest{ProtestPath: "/etc/hostname", Amount: "R$ 4.846,53"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodPost, "/v1/protest/validate", protestRequest{
		ProtestPath: protest, Amount: "R$ 4.846,53", MemoPath: "../../etc/hostname",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid memo_path")
}

func TestRouter_NoEvidenceRootRejectsPaths(t *testing.T) {
	te := newTestEnv(t)
	h := buildRouter(te.auditEnv, config.ServerConfig{})
	protest := te.doc(t, "p.txt", "Valor protestado R$ 4.846,53")

	rr := doRequest(t, h, http.MethodPost, "/v1/protest/validate", protestRequest{ProtestPath: protest, Amount: "R$ 4.846,53"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func preflight(h http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/v1/cases/evaluate", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_CORSPreflight(t *testing.T) {
	te := newTestEnv(t)
	h := buildRouter(te.auditEnv, config.ServerConfig{
		EvidenceRoot:   te.dir,
		AllowedOrigins: []string{"https://portal.example"},
	})

	rr := preflight(h, "https://portal.example")
	assert.Equal(t, "https://portal.example", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = preflight(h, "https://evil.example")
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CORSDisabledByDefault(t *testing.T) {
	te := newTestEnv(t)
	rr := preflight(te.router(), "https://portal.example")
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
