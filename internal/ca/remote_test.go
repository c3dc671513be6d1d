package ca_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/certserver/internal/ca"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/models"
	"github.com/adamscao/certserver/internal/testutil"
)

func TestRemoteSigner(t *testing.T) {
	local := ca.NewLocalSigner(testutil.IssuerKeys(t))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Admin-Token"))
		assert.Len(t, r.Header.Get("X-Admin-TOTP"), 6)

		var record models.CertificateRecord
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&record)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sig, err := local.Sign(r.Context(), record)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(map[string]string{"signature": sig})
	}))
	defer srv.Close()

	signer := ca.NewRemoteSigner(srv.URL, "secret",
		ca.WithTOTPSecret("JBSWY3DPEHPK3PXP"), ca.WithHTTPClient(srv.Client()))

	record := testutil.ScenarioRecord()
	sig, err := signer.Sign(context.Background(), record)
	require.NoError(t, err)
	assert.True(t, ca.Verify(testutil.VerifierKeys(t).PublicKey(), record, sig))
}

func TestRemoteSignerErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"key unavailable", http.StatusServiceUnavailable, `{"error":"key_unavailable","message":"no key"}`, certerrors.ErrKeyUnavailable},
		{"encoding", http.StatusBadRequest, `{"error":"encoding_error","message":"bad date"}`, certerrors.ErrEncoding},
		{"policy", http.StatusBadRequest, `{"error":"policy_violation","message":"name"}`, certerrors.ErrPolicyViolation},
		{"bad signature", http.StatusOK, `{"signature":"not-base64"}`, certerrors.ErrSignatureDecode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := ca.NewRemoteSigner(srv.URL, "t").Sign(context.Background(), testutil.ScenarioRecord())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRemoteSignerUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized","message":"Invalid admin token"}`))
	}))
	defer srv.Close()

	_, err := ca.NewRemoteSigner(srv.URL, "wrong").Sign(context.Background(), testutil.ScenarioRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}
