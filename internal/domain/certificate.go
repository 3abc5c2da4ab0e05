package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// PublicKeyAlgorithm identifies the signature scheme of a public key.
type PublicKeyAlgorithm string

const (
	AlgTAECDSASHA256 PublicKeyAlgorithm = "id-TA-ECDSA-SHA-256"
)

// DomainParameters are the explicit elliptic-curve parameters carried by
// a certificate request. All components are compared individually.
type DomainParameters struct {
	Prime    *big.Int
	A        *big.Int
	B        *big.Int
	BaseX    *big.Int
	BaseY    *big.Int
	Order    *big.Int
	Cofactor int
}

func (p DomainParameters) Equal(o DomainParameters) bool {
	if p.Cofactor != o.Cofactor {
		return false
	}
	pairs := [][2]*big.Int{
		{p.Prime, o.Prime},
		{p.A, o.A},
		{p.B, o.B},
		{p.BaseX, o.BaseX},
		{p.BaseY, o.BaseY},
		{p.Order, o.Order},
	}
	for _, pair := range pairs {
		if pair[0] == nil || pair[1] == nil {
			return false
		}
		if pair[0].Cmp(pair[1]) != 0 {
			return false
		}
	}
	return true
}

// PublicKeyInfo is a decoded certificate or request public key: the
// algorithm identifier, the explicit domain parameters and the point.
type PublicKeyInfo struct {
	Algorithm PublicKeyAlgorithm
	Params    DomainParameters
	X         *big.Int
	Y         *big.Int
}

// KeySpec is the authority's currently active public-key specification:
// the algorithm and domain parameters that incoming requests must match.
type KeySpec struct {
	Algorithm PublicKeyAlgorithm
	Params    DomainParameters
}

// CertificateRole classifies a stored certificate within the hierarchy.
type CertificateRole string

const (
	RoleCVCA     CertificateRole = "cvca"
	RoleDVCA     CertificateRole = "dvca"
	RoleTerminal CertificateRole = "terminal"
)

// Certificate is a decoded card-verifiable certificate. Raw holds the
// self-delimiting binary form transported on the wire.
type Certificate struct {
	Raw       []byte
	CAR       string
	CHR       string
	PublicKey PublicKeyInfo
	NotBefore time.Time
	NotAfter  time.Time

	// Body is the signed portion of Raw; Signature covers exactly Body.
	Body      []byte
	Signature []byte
}

// SelfSigned reports whether issuer and holder references coincide.
func (c *Certificate) SelfSigned() bool {
	return c.CAR == c.CHR
}

// NextHolderReference increments the trailing 5-digit sequence of a
// holder reference, e.g. UTDVCA00001 -> UTDVCA00002.
func NextHolderReference(chr string) (string, error) {
	if len(chr) <= 5 {
		return "", fmt.Errorf("holder reference too short: %q", chr)
	}
	prefix, seq := chr[:len(chr)-5], chr[len(chr)-5:]
	n, err := strconv.Atoi(seq)
	if err != nil {
		return "", fmt.Errorf("holder reference %q has no numeric sequence: %w", chr, err)
	}
	if n >= 99999 {
		return "", fmt.Errorf("holder reference sequence exhausted: %q", chr)
	}
	return fmt.Sprintf("%s%05d", prefix, n+1), nil
}
