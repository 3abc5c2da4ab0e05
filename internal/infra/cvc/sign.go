package cvc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

var errSignature = errors.New("signature verification failed")

// Signer verifies request and certificate signatures. Signatures are
// ECDSA over SHA-256 of the signed body, in ASN.1 form.
type Signer struct{}

func signBody(key *ecdsa.PrivateKey, body []byte) ([]byte, error) {
	digest := sha256.Sum256(body)
	return ecdsa.SignASN1(rand.Reader, key, digest[:])
}

func verifyWithPoint(pk domain.PublicKeyInfo, body, sig []byte) error {
	if pk.X == nil || pk.Y == nil {
		return errSignature
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: pk.X, Y: pk.Y}
	digest := sha256.Sum256(body)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return errSignature
	}
	return nil
}

// VerifyInner checks the request's self-contained signature using the
// public key carried inside the request itself.
func (Signer) VerifyInner(req *domain.CertificateRequest) error {
	return verifyWithPoint(req.PublicKey, req.Body, req.InnerSignature)
}

// VerifyOuter checks the request's outer signature against the public
// key of the referenced, previously issued certificate.
func (Signer) VerifyOuter(req *domain.CertificateRequest, signer domain.PublicKeyInfo) error {
	return verifyWithPoint(signer, req.OuterBody, req.OuterSignature)
}

// VerifyCertificate checks that cert's signature chains to the issuer's
// public key. A nil issuer means cert must be self-signed.
func VerifyCertificate(cert *domain.Certificate, issuer *domain.Certificate) error {
	signer := cert.PublicKey
	if issuer != nil {
		signer = issuer.PublicKey
	}
	return verifyWithPoint(signer, cert.Body, cert.Signature)
}
