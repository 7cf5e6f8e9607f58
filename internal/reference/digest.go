package reference

import (
	"fmt"
	"strings"

	godigest "github.com/opencontainers/go-digest"
)

// allowedDigestAlgorithms restricts validation to the two algorithms this
// system compares; go-digest itself also accepts sha384 and sha1, which are
// not part of this wire contract.
var allowedDigestAlgorithms = map[string]int{
	"sha256": 64,
	"sha512": 128,
}

// ParseDigest validates a "algorithm:hex" string and returns it as a
// godigest.Digest. Only sha256 and sha512 are accepted.
func ParseDigest(s string) (godigest.Digest, error) {
	d := godigest.Digest(s)
	algo, hex, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("digest %q has no algorithm prefix", s)
	}
	wantLen, known := allowedDigestAlgorithms[algo]
	if !known {
		return "", fmt.Errorf("digest %q uses unsupported algorithm %q", s, algo)
	}
	if len(hex) != wantLen {
		return "", fmt.Errorf("digest %q has wrong hex length for %s (want %d, got %d)", s, algo, wantLen, len(hex))
	}
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("digest %q failed validation: %w", s, err)
	}
	return d, nil
}

// ValidDigest reports whether s is a well-formed sha256 or sha512 digest.
func ValidDigest(s string) bool {
	_, err := ParseDigest(s)
	return err == nil
}

// DigestsEqual compares two digest strings byte-for-byte. No normalization
// is performed; a valid digest and an equivalent-but-differently-cased one
// are not considered equal, matching the wire contract's exact comparison.
func DigestsEqual(a, b string) bool {
	return a == b
}
