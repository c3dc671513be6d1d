package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/certserver/internal/api"
	"github.com/adamscao/certserver/internal/api/handlers"
	"github.com/adamscao/certserver/internal/ca"
	"github.com/adamscao/certserver/internal/config"
	"github.com/adamscao/certserver/internal/db"
	"github.com/adamscao/certserver/internal/db/repository"
	"github.com/adamscao/certserver/internal/issuance"
	"github.com/adamscao/certserver/internal/models"
	"github.com/adamscao/certserver/internal/testutil"
	"github.com/adamscao/certserver/internal/verification"
)

const adminToken = "test-admin-token"

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: db.MemoryPath},
		CA:       config.CAConfig{PublicKeyPath: "unused"},
		Admin:    config.AdminConfig{Token: adminToken},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newServer(t *testing.T, cfg *config.Config, keys *ca.KeyMaterial) *gin.Engine {
	t.Helper()
	database, err := db.New(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), database))

	repo := repository.NewCertRepository(database.DB)
	deps := api.Dependencies{
		Keys:     keys,
		Issuer:   issuance.NewService(ca.NewLocalSigner(keys), nil, issuance.WithStore(repo)),
		Verifier: verification.NewService(keys, verification.WithLookup(repo)),
		Lister:   repo,
	}
	return api.NewServer(cfg, deps, zerolog.Nop()).Router()
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", adminToken)
	return req
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for k, v := range files {
		part, err := w.CreateFormFile(k, k+".pdf")
		require.NoError(t, err)
		_, err = part.Write(v)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Admin-Token", adminToken)
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	router := newServer(t, testConfig(), testutil.IssuerKeys(t))
	w := do(router, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","signing":true,"fingerprint":"`+testutil.IssuerKeys(t).Fingerprint()+`"}`, w.Body.String())
}

func TestPublicKey(t *testing.T) {
	keys := testutil.IssuerKeys(t)
	router := newServer(t, testConfig(), keys)
	w := do(router, httptest.NewRequest(http.MethodGet, "/v1/ca/public-key", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testutil.IssuerPublicKeyPEM, w.Body.String())
	assert.Equal(t, keys.Fingerprint(), w.Header().Get("X-Key-Fingerprint"))
}

func TestSign(t *testing.T) {
	router := newServer(t, testConfig(), testutil.IssuerKeys(t))
	record := testutil.ScenarioRecord()

	w := do(router, jsonRequest(t, http.MethodPost, "/v1/sign", record))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[handlers.SignResponse](t, w)
	assert.NotEmpty(t, resp.ID)
	assert.True(t, ca.Verify(testutil.VerifierKeys(t).PublicKey(), record, resp.Signature))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSignErrors(t *testing.T) {
	router := newServer(t, testConfig(), testutil.IssuerKeys(t))

	req := jsonRequest(t, http.MethodPost, "/v1/sign", testutil.ScenarioRecord())
	req.Header.Del("X-Admin-Token")
	assert.Equal(t, http.StatusUnauthorized, do(router, req).Code)

	req = jsonRequest(t, http.MethodPost, "/v1/sign", testutil.ScenarioRecord())
	req.Header.Set("X-Admin-Token", "wrong")
	assert.Equal(t, http.StatusForbidden, do(router, req).Code)

	invalid := testutil.ScenarioRecord()
	invalid.Name = ""
	w := do(router, jsonRequest(t, http.MethodPost, "/v1/sign", invalid))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "policy_violation", decode[handlers.ErrorResponse](t, w).Error)

	req = httptest.NewRequest(http.MethodPost, "/v1/sign", bytes.NewBufferString("{"))
	req.Header.Set("X-Admin-Token", adminToken)
	assert.Equal(t, http.StatusBadRequest, do(router, req).Code)
}

func TestSignWithoutPrivateKey(t *testing.T) {
	router := newServer(t, testConfig(), testutil.VerifierKeys(t))
	w := do(router, jsonRequest(t, http.MethodPost, "/v1/sign", testutil.ScenarioRecord()))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "key_unavailable", decode[handlers.ErrorResponse](t, w).Error)
}

func TestAdminTOTP(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	cfg := testConfig()
	cfg.Admin.TOTPSecret = secret
	router := newServer(t, cfg, testutil.IssuerKeys(t))

	w := do(router, jsonRequest(t, http.MethodPost, "/v1/sign", testutil.ScenarioRecord()))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_totp", decode[handlers.ErrorResponse](t, w).Error)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	req := jsonRequest(t, http.MethodPost, "/v1/sign", testutil.ScenarioRecord())
	req.Header.Set("X-Admin-TOTP", code)
	assert.Equal(t, http.StatusOK, do(router, req).Code)
}

func TestSignBatch(t *testing.T) {
	router := newServer(t, testConfig(), testutil.IssuerKeys(t))

	body := map[string]any{
		"event": map[string]string{
			"eventId":             "ev1",
			"eventDate":           "2024-05-01T00:00:00.000Z",
			"certificateTemplate": "tmpl://a",
		},
		"recipients": []models.Recipient{
			{Name: "Ann", StudentID: "S1", Course: "CS101"},
			{Name: "", StudentID: "S2", Course: "CS101"},
		},
	}
	w := do(router, jsonRequest(t, http.MethodPost, "/v1/sign/batch", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[handlers.BatchResponse](t, w)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	assert.NotEmpty(t, resp.Results[0].Signature)
	assert.Equal(t, "policy_violation", resp.Results[1].Error)

	w = do(router, jsonRequest(t, http.MethodPost, "/v1/sign/batch", map[string]any{"event": body["event"]}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func issueCertificate(t *testing.T, router http.Handler, text string) []byte {
	t.Helper()
	record, err := json.Marshal(testutil.ScenarioRecord())
	require.NoError(t, err)

	w := do(router, multipartRequest(t, "/v1/certificates/issue",
		map[string]string{"record": string(record)},
		map[string][]byte{"artifact": testutil.MinimalPDF(text)}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Certificate-ID"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "certificate-ev1-S123.pdf")
	return w.Body.Bytes()
}

func TestIssueAndVerify(t *testing.T) {
	router := newServer(t, testConfig(), testutil.IssuerKeys(t))
	sealed := issueCertificate(t, router, "Alice")

	w := do(router, multipartRequest(t, "/v1/verify", nil, map[string][]byte{"certificate": sealed}))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[verification.Response](t, w)
	assert.True(t, resp.IsValid, resp.Details.Error)
	assert.Equal(t, "S123", resp.Details.CertificateData.StudentID)

	tampered := bytes.Replace(sealed, []byte("(Alice)"), []byte("(Mally)"), 1)
	w = do(router, multipartRequest(t, "/v1/verify", nil, map[string][]byte{"certificate": tampered}))
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[verification.Response](t, w)
	assert.False(t, resp.IsValid)
	assert.False(t, resp.Details.ContentIntegrity.IsValid)
}

func TestVerifyWithoutFile(t *testing.T) {
	router := newServer(t, testConfig(), testutil.IssuerKeys(t))

	w := do(router, multipartRequest(t, "/v1/verify", map[string]string{"other": "x"}, nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[verification.Response](t, w)
	assert.False(t, resp.IsValid)
	assert.Equal(t, verification.MsgNoFile, resp.Details.Error)
}

func TestVerifyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Verification.MaxArtifactBytes = 64
	router := newServer(t, cfg, testutil.IssuerKeys(t))

	w := do(router, multipartRequest(t, "/v1/verify", nil, map[string][]byte{"certificate": testutil.MinimalPDF("x")}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, verification.MsgTooLarge, decode[verification.Response](t, w).Details.Error)
}

func TestIssueRejectsNonPDF(t *testing.T) {
	router := newServer(t, testConfig(), testutil.IssuerKeys(t))
	record, err := json.Marshal(testutil.ScenarioRecord())
	require.NoError(t, err)

	w := do(router, multipartRequest(t, "/v1/certificates/issue",
		map[string]string{"record": string(record)},
		map[string][]byte{"artifact": []byte("not a pdf")}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "artifact_format_error", decode[handlers.ErrorResponse](t, w).Error)

	w = do(router, multipartRequest(t, "/v1/certificates/issue", map[string]string{"record": string(record)}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCertificateLookup(t *testing.T) {
	router := newServer(t, testConfig(), testutil.IssuerKeys(t))
	issueCertificate(t, router, "Alice")

	w := do(router, jsonRequest(t, http.MethodGet, "/v1/events/ev1/certificates", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[handlers.ListResponse](t, w)
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Certificates, 1)
	assert.NotEmpty(t, list.Certificates[0].ContentDigest)

	req := httptest.NewRequest(http.MethodGet, "/v1/events/ev1/certificates", nil)
	assert.Equal(t, http.StatusUnauthorized, do(router, req).Code)

	w = do(router, httptest.NewRequest(http.MethodGet, "/v1/events/ev1/certificates/S123", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[verification.Response](t, w)
	assert.True(t, resp.IsValid)
	assert.Equal(t, list.Certificates[0].ID, resp.Details.CertificateID)

	w = do(router, httptest.NewRequest(http.MethodGet, "/v1/events/ev1/certificates/nobody", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[handlers.ErrorResponse](t, w).Error)
}

func TestRemoteSignerAgainstServer(t *testing.T) {
	srv := httptest.NewServer(newServer(t, testConfig(), testutil.IssuerKeys(t)))
	defer srv.Close()

	signer := ca.NewRemoteSigner(srv.URL+"/v1/sign", adminToken, ca.WithHTTPClient(srv.Client()))
	sig, err := signer.Sign(context.Background(), testutil.ScenarioRecord())
	require.NoError(t, err)
	assert.True(t, ca.Verify(testutil.VerifierKeys(t).PublicKey(), testutil.ScenarioRecord(), sig))
}
