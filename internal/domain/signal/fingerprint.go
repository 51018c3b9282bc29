package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Fingerprint identifies one real-world occurrence across repeated polls
type Fingerprint string

// NewFingerprint derives the key from (kind, occurredAt, subject, primary).
// The feed id is not part of the key.
func NewFingerprint(kind EventKind, occurredAt time.Time, subject, primary string) Fingerprint {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteByte(0x1f)
	b.WriteString(strconv.FormatInt(occurredAt.UTC().UnixMilli(), 10))
	b.WriteByte(0x1f)
	b.WriteString(strings.ToUpper(strings.TrimSpace(subject)))
	b.WriteByte(0x1f)
	b.WriteString(primary)

	sum := sha256.Sum256([]byte(b.String()))
	return Fingerprint(hex.EncodeToString(sum[:16]))
}

// String implements fmt.Stringer
func (f Fingerprint) String() string {
	return string(f)
}
