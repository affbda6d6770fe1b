package ticket

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// Signer signs ticket identifiers and verifies presented signatures with
// ed25519. Signatures are hex-encoded.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner builds a signer from a hex-encoded 32-byte seed. publicKeyHex
// overrides the verification key when set; otherwise it is derived from the
// seed.
func NewSigner(seedHex, publicKeyHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, errors.New("signing seed must be 64 hex characters")
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	if publicKeyHex != "" {
		override, err := hex.DecodeString(publicKeyHex)
		if err != nil || len(override) != ed25519.PublicKeySize {
			return nil, errors.New("verification key must be 64 hex characters")
		}
		pub = ed25519.PublicKey(override)
	}

	return &Signer{priv: priv, pub: pub}, nil
}

// Sign returns the hex signature over the ticket id.
func (s *Signer) Sign(ticketID string) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, []byte(ticketID)))
}

// Verify reports whether sigHex is a valid signature over ticketID.
// Malformed input verifies false, same as a wrong signature.
func (s *Signer) Verify(ticketID, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.pub, []byte(ticketID), sig)
}

// VerificationKey returns the hex-encoded public key so gate scanners can
// verify offline.
func (s *Signer) VerificationKey() string {
	return fmt.Sprintf("%x", []byte(s.pub))
}
