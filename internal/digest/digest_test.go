package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certerrors "github.com/adamscao/certserver/internal/errors"
)

func TestContent(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Content(nil))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Content([]byte("abc")))
	assert.Len(t, Content([]byte("anything")), 64)
}

func TestMatches(t *testing.T) {
	b := []byte("abc")
	d := Content(b)

	assert.True(t, Matches(d, b))
	assert.True(t, Matches(strings.ToUpper(d), b))
	assert.False(t, Matches(d, []byte("abd")))
	assert.False(t, Matches("", b))
	assert.False(t, Matches(d[:10], b))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(Content([]byte("x"))))

	for _, bad := range []string{"", "abc", strings.Repeat("z", 64), "sha256:" + Content(nil)} {
		err := Validate(bad)
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, certerrors.ErrParse)
	}
}
