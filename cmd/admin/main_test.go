package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/certserver/internal/config"
	"github.com/adamscao/certserver/internal/testutil"
	"github.com/adamscao/certserver/internal/verification"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "ca.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(testutil.IssuerPrivateKeyPEM), 0o600))

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := `server:
  listen_addr: ":0"
database:
  path: ` + filepath.Join(dir, "certs.db") + `
ca:
  private_key_path: ` + keyPath + `
admin:
  token: test-admin-token
logging:
  level: error
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))
	return cfgPath, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeWithStderr(t, args...)
	return out, err
}

func executeWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	// flag variables outlive a single Execute
	comparePath, listLimit, verbose = "", 0, false

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	err := rootCmd.Execute()
	closeLog()
	return out.String(), errOut.String(), err
}

func TestTOTPSetup(t *testing.T) {
	out, err := execute(t, "totp", "setup", "--account", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "TOTP Secret: ")
	assert.Contains(t, out, "otpauth://totp/certserver:ops?secret=")
}

func TestKeyFingerprint(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "-c", cfgPath, "key", "fingerprint")
	require.NoError(t, err)
	assert.Contains(t, out, "Fingerprint: SHA256:")
	assert.Contains(t, out, "Signing:     true")
	assert.Contains(t, out, testutil.IssuerPublicKeyPEM)
}

func TestKeyFingerprintCompare(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	same := filepath.Join(dir, "same.pem")
	require.NoError(t, os.WriteFile(same, []byte(testutil.IssuerPublicKeyPEM), 0o600))
	other := filepath.Join(dir, "other.pem")
	require.NoError(t, os.WriteFile(other, []byte(testutil.OtherPublicKeyPEM), 0o600))

	out, err := execute(t, "-c", cfgPath, "key", "fingerprint", "--compare", same)
	require.NoError(t, err)
	assert.Contains(t, out, "Match:       yes")

	_, err = execute(t, "-c", cfgPath, "key", "fingerprint", "--compare", other)
	assert.ErrorContains(t, err, "does not match the issuer key")
}

func TestIssueVerifyList(t *testing.T) {
	cfgPath, dir := writeConfig(t)

	record, err := json.Marshal(testutil.ScenarioRecord())
	require.NoError(t, err)
	recordPath := filepath.Join(dir, "record.json")
	require.NoError(t, os.WriteFile(recordPath, record, 0o600))
	pdfPath := filepath.Join(dir, "rendered.pdf")
	require.NoError(t, os.WriteFile(pdfPath, testutil.MinimalPDF("Jane Doe"), 0o600))
	sealedPath := filepath.Join(dir, "sealed.pdf")

	out, err := execute(t, "-c", cfgPath, "issue",
		"--record", recordPath, "--artifact", pdfPath, "--out", sealedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Certificate issued")
	assert.Regexp(t, `Content digest: [0-9a-f]{64}`, out)

	out, err = execute(t, "-c", cfgPath, "verify", sealedPath)
	require.NoError(t, err)
	var resp verification.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.IsValid)
	assert.Equal(t, "S123", resp.Details.CertificateData.StudentID)

	out, err = execute(t, "-c", cfgPath, "certs", "list", "--event", "ev1")
	require.NoError(t, err)
	assert.Contains(t, out, "Total certificates: 1")
	assert.Contains(t, out, "Jane Doe")

	t.Run("tampered", func(t *testing.T) {
		sealed, err := os.ReadFile(sealedPath)
		require.NoError(t, err)
		tampered := filepath.Join(dir, "tampered.pdf")
		require.NoError(t, os.WriteFile(tampered, append(sealed, []byte("\n% edited\n")...), 0o600))

		_, err = execute(t, "-c", cfgPath, "verify", tampered)
		assert.ErrorContains(t, err, "certificate is not valid")
	})
}

func TestSignBatch(t *testing.T) {
	cfgPath, dir := writeConfig(t)

	batchPath := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(batchPath, []byte(`{
  "event": {"eventId": "ev2", "eventDate": "2024-05-01T00:00:00Z", "certificateTemplate": "tmpl://a"},
  "recipients": [
    {"name": "Jane Doe", "studentID": "S1", "course": "CS101"},
    {"name": "", "studentID": "S2", "course": "CS101"},
    {"name": "John Roe", "studentID": "S3", "course": "CS101", "part": 2}
  ]
}`), 0o600))

	out, err := execute(t, "-c", cfgPath, "sign", "--input", batchPath)
	assert.ErrorContains(t, err, "1 of 3 records failed")

	var resp struct {
		Total     int `json:"total"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
		Results   []struct {
			StudentID string `json:"studentID"`
			Signature string `json:"signature"`
			Error     string `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "S2", resp.Results[1].StudentID)
	assert.Equal(t, "policy_violation", resp.Results[1].Error)
	assert.NotEmpty(t, resp.Results[2].Signature)

	out, err = execute(t, "-c", cfgPath, "certs", "list", "--event", "ev2")
	require.NoError(t, err)
	assert.Contains(t, out, "Total certificates: 2")
}

func TestLoggingFollowsConfig(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, bytes.Replace(data, []byte("level: error"), []byte("level: info"), 1), 0o600))

	_, stderr, err := executeWithStderr(t, "-c", cfgPath, "certs", "list", "--event", "none")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"message":"issuer keys loaded"`)
}

func TestLoggingRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logOut = &buf
	t.Cleanup(func() { logOut = os.Stderr })

	require.NoError(t, setupLogging(config.LoggingConfig{Level: "info", Format: "json"}))
	defer closeLog()

	logger.Warn().Str("totp_secret", "JBSWY3DPEHPK3PXP").Msg("configured")
	assert.Contains(t, buf.String(), "configured")
	assert.NotContains(t, buf.String(), "JBSWY3DPEHPK3PXP")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "-c", filepath.Join(t.TempDir(), "absent.yaml"), "key", "fingerprint")
	assert.ErrorContains(t, err, "failed to load config")
}
