package signing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()

	signer, err := NewSigner(testSecret, "webhook")
	require.NoError(t, err)

	signer.now = func() time.Time { return now }

	return signer
}

func TestNewSigner_WeakSecret(t *testing.T) {
	t.Parallel()

	_, err := NewSigner("short", "webhook")
	require.ErrorIs(t, err, ErrWeakSecret)
}

func TestNewToken(t *testing.T) {
	t.Parallel()

	a, b := NewToken(), NewToken()
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 26)
	assert.NotContains(t, a, separator)
}

func TestSigner_RoundTrip(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t, time.Unix(1_700_000_000, 0))
	token := NewToken()

	envelope := signer.Sign(token)
	assert.True(t, strings.HasPrefix(envelope, token+separator))

	unwrapped, err := signer.Unwrap(envelope, 0)
	require.NoError(t, err)
	assert.Equal(t, token, unwrapped)
}

func TestSigner_TamperingAnySingleByteFails(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t, time.Unix(1_700_000_000, 0))
	envelope := signer.Sign(NewToken())

	for i := range len(envelope) {
		tampered := []byte(envelope)
		if tampered[i] == 'A' {
			tampered[i] = 'B'
		} else {
			tampered[i] = 'A'
		}

		_, err := signer.Unwrap(string(tampered), 0)
		require.Error(t, err, "byte %d", i)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}
}

func TestSigner_Unwrap_Errors(t *testing.T) {
	t.Parallel()

	signedAt := time.Unix(1_700_000_000, 0)
	signer := newTestSigner(t, signedAt)
	envelope := signer.Sign("token")

	other, err := NewSigner(testSecret, "identity")
	require.NoError(t, err)

	tests := []struct {
		name     string
		envelope string
		maxAge   time.Duration
		now      time.Time
		err      error
	}{
		{name: "empty", envelope: "", err: ErrMalformedEnvelope},
		{name: "garbage", envelope: "garbage", err: ErrMalformedEnvelope},
		{name: "missing timestamp", envelope: "token:sig", err: ErrMalformedEnvelope},
		{name: "bad timestamp", envelope: "token:!!:sig", err: ErrMalformedEnvelope},
		{name: "empty signature", envelope: "token:abc:", err: ErrMalformedEnvelope},
		{name: "wrong signature", envelope: "token:abc:c2lnbmF0dXJl", err: ErrInvalidSignature},
		{name: "other salt", envelope: other.Sign("token"), err: ErrInvalidSignature},
		{name: "expired", envelope: envelope, maxAge: time.Hour, now: signedAt.Add(2 * time.Hour), err: ErrSignatureExpired},
		{name: "within max age", envelope: envelope, maxAge: time.Hour, now: signedAt.Add(30 * time.Minute)},
		{name: "no expiry", envelope: envelope, now: signedAt.Add(24 * 365 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verifier := newTestSigner(t, signedAt)
			if !tt.now.IsZero() {
				verifier.now = func() time.Time { return tt.now }
			}

			token, err := verifier.Unwrap(tt.envelope, tt.maxAge)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.ErrorIs(t, err, ErrUnauthenticated)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "token", token)
		})
	}
}
