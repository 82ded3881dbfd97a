// Package password hashes credentials with Argon2id in the PHC string
// format: $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<hash>.
// Verify honors the parameters encoded in the stored string, so raising
// the cost later never invalidates existing credentials.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

type cost struct {
	memory uint32
	passes uint32
	lanes  uint8
}

var defaultCost = cost{memory: 64 * 1024, passes: 1, lanes: 4}

const (
	saltLen = 16
	keyLen  = 32
)

// Hash returns the Argon2id encoding stored for a user password.
func Hash(plain string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plain), salt, defaultCost.passes, defaultCost.memory, defaultCost.lanes, keyLen)

	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		defaultCost.memory, defaultCost.passes, defaultCost.lanes,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches the encoded hash. Malformed
// encodings verify as false rather than erroring.
func Verify(plain, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return false
	}

	c, ok := parseCost(parts[3])
	if !ok {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(plain), salt, c.passes, c.memory, c.lanes, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1
}

func parseCost(section string) (cost, bool) {
	fields := strings.Split(section, ",")
	if len(fields) != 3 {
		return cost{}, false
	}

	memory, ok := parseUint32(fields[0], "m=")
	if !ok {
		return cost{}, false
	}
	passes, ok := parseUint32(fields[1], "t=")
	if !ok {
		return cost{}, false
	}
	lanes, ok := parseUint8(fields[2], "p=")
	if !ok {
		return cost{}, false
	}
	return cost{memory: memory, passes: passes, lanes: lanes}, true
}

func parseUint32(field, prefix string) (uint32, bool) {
	raw, ok := strings.CutPrefix(field, prefix)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func parseUint8(field, prefix string) (uint8, bool) {
	raw, ok := strings.CutPrefix(field, prefix)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}
