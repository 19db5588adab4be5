// Package primitives wraps the small set of cryptographic operations the
// rest of the module treats as platform services: hashing, signing,
// verification and randomness. Grounded on original_source's
// mpt_tree_common.h (platform_sha256 / platform_get_random) and the
// tee_network sign/verify stub, with concrete algorithms substituted in
// place of the originals' placeholders.
package primitives

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"

	"github.com/zeebo/blake3"
)

// HashSize is the width of a digest produced by Hash.
const HashSize = 32

// ErrShortSignature is not returned by Verify, which reports a signature
// of the wrong length as a false result.
var ErrShortSignature = errors.New("primitives: signature too short")

// Hash returns the blake3-256 digest of data. The original's
// platform_sha256 is replaced by a collision-resistant, parallel-friendly
// primitive already present in the module's dependency graph.
func Hash(data ...[]byte) [HashSize]byte {
	h := blake3.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// RNG reads n cryptographically secure random bytes. original_source's
// platform_get_random falls back to a fixed election timeout when
// unavailable; this implementation relies on the OS CSPRNG, which is
// assumed always available in Go's runtime targets.
func RNG(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Suite is a keyed signer/verifier, the concrete replacement for
// tee_network's sign/verify stub (sha256 of the header and a zeroed
// second half, "verified" by a not-all-zero check). Here signatures are
// real ed25519 signatures over the supplied message.
type Suite struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSuite generates a fresh ed25519 keypair.
func NewSuite() (*Suite, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Suite{priv: priv, pub: pub}, nil
}

// NewSuiteFromSeed derives a deterministic keypair, used by tests and by
// nodes that persist their identity across restarts.
func NewSuiteFromSeed(seed []byte) *Suite {
	priv := ed25519.NewKeyFromSeed(seed)
	return &Suite{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// PublicKey returns the suite's public key.
func (s *Suite) PublicKey() ed25519.PublicKey { return s.pub }

// Sign signs msg.
func (s *Suite) Sign(msg []byte) []byte {
	return ed25519.Sign(s.priv, msg)
}

// Verify checks sig against msg using pub. A mirror of
// tee_network_verify_message's contract but with real verification in
// place of the not-all-zero placeholder.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// Attestation is an opaque placeholder quote. Real SEV-SNP attestation
// requires hardware unavailable to this implementation; the shape is
// kept so callers can be written against the eventual real thing.
type Attestation struct {
	ReportData [64]byte
	Measurement [48]byte
}

// Attest produces a content-free Attestation binding reportData into the
// report. It does not prove anything about the execution environment.
func Attest(reportData []byte) Attestation {
	var a Attestation
	copy(a.ReportData[:], reportData)
	return a
}
