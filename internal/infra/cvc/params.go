// Package cvc is the card-verifiable certificate collaborator: wire
// codec, ECDSA signature primitives and certificate issuance.
package cvc

import (
	"crypto/elliptic"
	"math/big"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

// P256Params returns the explicit domain parameters of NIST P-256, the
// parameter set this authority issues against.
func P256Params() domain.DomainParameters {
	p := elliptic.P256().Params()
	// a = p - 3 for the NIST curves
	a := new(big.Int).Sub(p.P, big.NewInt(3))
	return domain.DomainParameters{
		Prime:    new(big.Int).Set(p.P),
		A:        a,
		B:        new(big.Int).Set(p.B),
		BaseX:    new(big.Int).Set(p.Gx),
		BaseY:    new(big.Int).Set(p.Gy),
		Order:    new(big.Int).Set(p.N),
		Cofactor: 1,
	}
}

// P256Spec is the default active key specification.
func P256Spec() domain.KeySpec {
	return domain.KeySpec{
		Algorithm: domain.AlgTAECDSASHA256,
		Params:    P256Params(),
	}
}
