package utils_test

import (
	"encoding/base64"
	"testing"

	"github.com/jrsteele09/go-spotify-link/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestRandomString(t *testing.T) {
	a, err := utils.RandomString(32)
	require.NoError(t, err)
	b, err := utils.RandomString(32)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	require.Len(t, raw, 32)
}

func TestFingerprint(t *testing.T) {
	require.Empty(t, utils.Fingerprint(""))
	fp := utils.Fingerprint("refresh-token-value")
	require.Len(t, fp, 12)
	require.Equal(t, fp, utils.Fingerprint("refresh-token-value"))
	require.NotContains(t, fp, "refresh")
}
