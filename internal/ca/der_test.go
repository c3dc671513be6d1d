package ca

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawDERConversion(t *testing.T) {
	raw := make([]byte, SignatureSize)
	// r has a leading zero byte and s has the high bit set, covering both
	// padding and the ASN.1 sign byte.
	raw[1] = 0x7f
	raw[scalarSize-1] = 0x01
	raw[scalarSize] = 0x80
	raw[SignatureSize-1] = 0x02

	der, err := rawToDER(raw)
	require.NoError(t, err)

	back, err := derToRaw(der)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, back))
}

func TestDERToRawRejectsMalformed(t *testing.T) {
	_, err := derToRaw([]byte{0x30, 0x03, 0x02, 0x01})
	assert.Error(t, err)

	_, err = derToRaw(nil)
	assert.Error(t, err)
}
