package cvc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

const defaultValidity = 30 * 24 * time.Hour

// Issuer holds the authority's signing identity: the current holder
// reference and key, plus a pending key generated for an outstanding
// renewal request and promoted once the parent confirms it.
type Issuer struct {
	mu      sync.Mutex
	chr     string
	key     *ecdsa.PrivateKey
	nextCHR string
	nextKey *ecdsa.PrivateKey
	now     func() time.Time
}

func NewIssuer(chr string, key *ecdsa.PrivateKey, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{chr: chr, key: key, now: now}
}

func (i *Issuer) HolderReference() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.chr
}

// HolderPrefix is the holder reference without its sequence digits, the
// part shared by all of this authority's certificates.
func (i *Issuer) HolderPrefix() string {
	chr := i.HolderReference()
	if len(chr) <= 5 {
		return chr
	}
	return chr[:len(chr)-5]
}

func (i *Issuer) PublicKeyInfo() domain.PublicKeyInfo {
	i.mu.Lock()
	defer i.mu.Unlock()
	return PublicKeyInfoFor(i.key)
}

// Issue signs a new certificate for the requester's key, valid from
// today for the policy-supplied validity.
func (i *Issuer) Issue(ctx context.Context, req *domain.CertificateRequest, validity time.Duration) (*domain.Certificate, error) {
	if validity <= 0 {
		validity = defaultValidity
	}
	i.mu.Lock()
	car, key := i.chr, i.key
	i.mu.Unlock()

	now := i.now().UTC()
	notBefore := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return IssueCertificate(car, key, req.CHR, req.PublicKey, notBefore, notBefore.Add(validity))
}

// BuildRequest constructs an encoded certificate request toward the
// parent authority: a fresh key pair under the next holder reference,
// inner-signed with the new key and, unless initial is set, outer-signed
// with the current key. The new key is held pending until ConfirmIssued.
func (i *Issuer) BuildRequest(ctx context.Context, spec domain.KeySpec, initial bool) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	nextCHR, err := domain.NextHolderReference(i.chr)
	if err != nil {
		return nil, err
	}
	nextKey, err := NewKey()
	if err != nil {
		return nil, err
	}

	pk := PublicKeyInfoFor(nextKey)
	pk.Algorithm = spec.Algorithm
	if spec.Params.Prime != nil {
		pk.Params = spec.Params
	}
	req := &domain.CertificateRequest{CHR: nextCHR, PublicKey: pk}

	var outerCAR string
	var outerKey *ecdsa.PrivateKey
	if !initial {
		outerCAR, outerKey = i.chr, i.key
	}
	if err := SignRequest(req, nextKey, outerCAR, outerKey); err != nil {
		return nil, err
	}

	i.nextCHR = nextCHR
	i.nextKey = nextKey
	return req.Raw, nil
}

// ConfirmIssued promotes the pending key when the parent has issued a
// certificate for its holder reference.
func (i *Issuer) ConfirmIssued(chr string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.nextKey == nil || chr != i.nextCHR {
		return false
	}
	i.chr = i.nextCHR
	i.key = i.nextKey
	i.nextCHR = ""
	i.nextKey = nil
	return true
}

// NewKey generates a P-256 key pair.
func NewKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// PublicKeyInfoFor describes key's public half with explicit P-256
// domain parameters.
func PublicKeyInfoFor(key *ecdsa.PrivateKey) domain.PublicKeyInfo {
	return domain.PublicKeyInfo{
		Algorithm: domain.AlgTAECDSASHA256,
		Params:    P256Params(),
		X:         key.PublicKey.X,
		Y:         key.PublicKey.Y,
	}
}

// SignBody signs the given encoded body.
func SignBody(key *ecdsa.PrivateKey, body []byte) ([]byte, error) {
	return signBody(key, body)
}

// SignRequest fills in the request's signatures and encoded forms:
// inner signature with innerKey and, when outerCAR is set, an outer
// signature with outerKey over the inner structure.
func SignRequest(req *domain.CertificateRequest, innerKey *ecdsa.PrivateKey, outerCAR string, outerKey *ecdsa.PrivateKey) error {
	body, err := EncodeRequestBody(req)
	if err != nil {
		return err
	}
	req.Body = body
	if req.InnerSignature, err = signBody(innerKey, body); err != nil {
		return err
	}
	inner, err := EncodeRequestInner(req)
	if err != nil {
		return err
	}
	if outerCAR != "" {
		if outerKey == nil {
			return fmt.Errorf("outer signature requested without a key")
		}
		req.OuterCAR = outerCAR
		if req.OuterSignature, err = signBody(outerKey, inner); err != nil {
			return err
		}
	}
	return EncodeRequest(req)
}

// IssueCertificate builds and signs a certificate binding holderPub to
// holder, issued under issuerCHR.
func IssueCertificate(issuerCHR string, issuerKey *ecdsa.PrivateKey, holder string, holderPub domain.PublicKeyInfo, notBefore, notAfter time.Time) (*domain.Certificate, error) {
	cert := &domain.Certificate{
		CAR:       issuerCHR,
		CHR:       holder,
		PublicKey: holderPub,
		NotBefore: notBefore,
		NotAfter:  notAfter,
	}
	body, err := encodeCertificateBody(cert)
	if err != nil {
		return nil, err
	}
	if cert.Signature, err = signBody(issuerKey, body); err != nil {
		return nil, err
	}
	if err := EncodeCertificate(cert); err != nil {
		return nil, err
	}
	return cert, nil
}

// SelfSignedCertificate builds a root certificate whose issuer and
// holder references coincide.
func SelfSignedCertificate(chr string, key *ecdsa.PrivateKey, notBefore, notAfter time.Time) (*domain.Certificate, error) {
	return IssueCertificate(chr, key, chr, PublicKeyInfoFor(key), notBefore, notAfter)
}
