package password

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/argon2"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	encoded, err := Hash("s3cret-passphrase")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	assert.True(t, Verify("s3cret-passphrase", encoded))
	assert.False(t, Verify("not-the-passphrase", encoded))
}

func TestHashSaltsEveryCall(t *testing.T) {
	first, err := Hash("same-input")
	assert.NoError(t, err)
	second, err := Hash("same-input")
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVerifyRejectsMalformedEncodings(t *testing.T) {
	encodings := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=65536,t=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=abc,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaGhhc2g",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ",
	}
	for _, encoded := range encodings {
		assert.False(t, Verify("anything", encoded), "encoding %q must not verify", encoded)
	}
}

func TestVerifyHonorsEncodedCost(t *testing.T) {
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte("pw"), salt, 2, 32*1024, 2, 32)
	encoded := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		32*1024, 2, 2,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	assert.True(t, Verify("pw", encoded))
	assert.False(t, Verify("other", encoded))
}
