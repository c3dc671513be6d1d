package ca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"

	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/models"
)

// maxRemoteResponse bounds the sign response body.
const maxRemoteResponse = 64 << 10

// RemoteSigner delegates signing to the /v1/sign endpoint of an issuer
// process that holds the private key.
type RemoteSigner struct {
	endpoint   string
	adminToken string
	totpSecret string
	client     *http.Client
	now        func() time.Time
}

// RemoteOption configures a RemoteSigner.
type RemoteOption func(*RemoteSigner)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(s *RemoteSigner) {
		s.client = c
	}
}

// WithTOTPSecret makes the signer send a fresh TOTP code with every request.
func WithTOTPSecret(secret string) RemoteOption {
	return func(s *RemoteSigner) {
		s.totpSecret = secret
	}
}

// NewRemoteSigner creates a signer posting to endpoint, for example
// "https://issuer.internal/v1/sign".
func NewRemoteSigner(endpoint, adminToken string, opts ...RemoteOption) *RemoteSigner {
	s := &RemoteSigner{
		endpoint:   endpoint,
		adminToken: adminToken,
		client:     &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type remoteSignResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// Sign posts record to the remote issuer. The call is bound to ctx.
func (s *RemoteSigner) Sign(ctx context.Context, record models.CertificateRecord) (string, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("%w: %v", certerrors.ErrEncoding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", s.adminToken)
	if s.totpSecret != "" {
		code, err := totp.GenerateCode(s.totpSecret, s.now())
		if err != nil {
			return "", fmt.Errorf("failed to generate TOTP code: %w", err)
		}
		req.Header.Set("X-Admin-TOTP", code)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign request failed: %w", err)
	}
	defer resp.Body.Close()

	var out remoteSignResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteResponse)).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode sign response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", remoteError(resp.StatusCode, out)
	}
	if _, err := DecodeSignature(out.Signature); err != nil {
		return "", fmt.Errorf("remote signer returned an unusable signature: %w", err)
	}
	return out.Signature, nil
}

func remoteError(status int, out remoteSignResponse) error {
	msg := fmt.Sprintf("remote signer: %s (status %d)", out.Message, status)
	switch out.Error {
	case "key_unavailable":
		return fmt.Errorf("%s: %w", msg, certerrors.ErrKeyUnavailable)
	case "encoding_error":
		return fmt.Errorf("%s: %w", msg, certerrors.ErrEncoding)
	case "policy_violation":
		return fmt.Errorf("%s: %w", msg, certerrors.ErrPolicyViolation)
	default:
		return fmt.Errorf("%s: %s", msg, out.Error)
	}
}
