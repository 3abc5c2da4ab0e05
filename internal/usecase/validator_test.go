package usecase_test

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/aneury1/scsh-scripts/internal/domain"
	"github.com/aneury1/scsh-scripts/internal/infra/cvc"
	"github.com/aneury1/scsh-scripts/internal/infra/memstore"
	"github.com/aneury1/scsh-scripts/internal/usecase"
)

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := cvc.NewKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func buildRequest(t *testing.T, chr string, key *ecdsa.PrivateKey, outerCAR string, outerKey *ecdsa.PrivateKey) *domain.CertificateRequest {
	t.Helper()
	req := &domain.CertificateRequest{CHR: chr, PublicKey: cvc.PublicKeyInfoFor(key)}
	if err := cvc.SignRequest(req, key, outerCAR, outerKey); err != nil {
		t.Fatalf("sign request: %v", err)
	}
	return req
}

func newValidator(t *testing.T) (*usecase.RequestValidator, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return &usecase.RequestValidator{
		Codec:    cvc.Codec{},
		Verifier: cvc.Signer{},
		Store:    store,
	}, store
}

func TestCheckSyntaxRejectsGarbage(t *testing.T) {
	v, _ := newValidator(t)
	req, status := v.CheckSyntax([]byte{0xde, 0xad, 0xbe, 0xef})
	if status != domain.StatusFailureSyntax {
		t.Fatalf("status = %s, want %s", status, domain.StatusFailureSyntax)
	}
	if req != nil {
		t.Fatal("expected nil request on syntax failure")
	}
}

func TestCheckSemanticsInitialRequest(t *testing.T) {
	v, _ := newValidator(t)
	req := buildRequest(t, "UTTERM00001", mustKey(t), "", nil)

	status, outer, err := v.CheckSemantics(context.Background(), req, cvc.P256Spec())
	if err != nil {
		t.Fatalf("CheckSemantics: %v", err)
	}
	if status != domain.StatusOKCertAvailable {
		t.Fatalf("status = %s, want %s", status, domain.StatusOKCertAvailable)
	}
	if outer != nil {
		t.Fatal("initial request must not resolve an outer certificate")
	}
}

func TestCheckSemanticsInnerSignatureTampered(t *testing.T) {
	v, _ := newValidator(t)
	req := buildRequest(t, "UTTERM00001", mustKey(t), "", nil)
	req.InnerSignature[0] ^= 0xff

	status, _, err := v.CheckSemantics(context.Background(), req, cvc.P256Spec())
	if err != nil {
		t.Fatalf("CheckSemantics: %v", err)
	}
	if status != domain.StatusFailureInnerSignature {
		t.Fatalf("status = %s, want %s", status, domain.StatusFailureInnerSignature)
	}
}

func TestCheckSemanticsAlgorithmMismatch(t *testing.T) {
	v, _ := newValidator(t)
	req := buildRequest(t, "UTTERM00001", mustKey(t), "", nil)

	spec := cvc.P256Spec()
	spec.Algorithm = "id-TA-ECDSA-SHA-384"
	status, _, err := v.CheckSemantics(context.Background(), req, spec)
	if err != nil {
		t.Fatalf("CheckSemantics: %v", err)
	}
	if status != domain.StatusFailureSyntax {
		t.Fatalf("status = %s, want %s", status, domain.StatusFailureSyntax)
	}
}

// A request whose declared parameters differ in a single component is
// malformed even though its signature still verifies on the real curve.
func TestCheckSemanticsDomainParameterMismatch(t *testing.T) {
	v, _ := newValidator(t)
	req := buildRequest(t, "UTTERM00001", mustKey(t), "", nil)

	spec := cvc.P256Spec()
	spec.Params.Cofactor = 2
	status, _, err := v.CheckSemantics(context.Background(), req, spec)
	if err != nil {
		t.Fatalf("CheckSemantics: %v", err)
	}
	if status != domain.StatusFailureSyntax {
		t.Fatalf("status = %s, want %s", status, domain.StatusFailureSyntax)
	}
}

func TestCheckSemanticsOuterReferenceUnknown(t *testing.T) {
	v, _ := newValidator(t)
	key := mustKey(t)
	req := buildRequest(t, "UTTERM00002", key, "UTTERM00001", key)

	status, _, err := v.CheckSemantics(context.Background(), req, cvc.P256Spec())
	if err != nil {
		t.Fatalf("CheckSemantics: %v", err)
	}
	if status != domain.StatusFailureOuterSignature {
		t.Fatalf("status = %s, want %s", status, domain.StatusFailureOuterSignature)
	}
}

func TestCheckSemanticsOuterSignatureInvalid(t *testing.T) {
	v, store := newValidator(t)

	notBefore := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	holderKey := mustKey(t)
	cert, err := cvc.SelfSignedCertificate("UTTERM00001", holderKey, notBefore, notBefore.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("build certificate: %v", err)
	}
	if err := store.Insert(context.Background(), cert, domain.RoleTerminal); err != nil {
		t.Fatalf("insert certificate: %v", err)
	}

	// Outer signature produced by a key other than the one bound to
	// the referenced certificate.
	newKey := mustKey(t)
	req := buildRequest(t, "UTTERM00002", newKey, "UTTERM00001", mustKey(t))

	status, _, err := v.CheckSemantics(context.Background(), req, cvc.P256Spec())
	if err != nil {
		t.Fatalf("CheckSemantics: %v", err)
	}
	if status != domain.StatusFailureOuterSignature {
		t.Fatalf("status = %s, want %s", status, domain.StatusFailureOuterSignature)
	}
}

func TestCheckSemanticsAuthenticatedRequest(t *testing.T) {
	v, store := newValidator(t)

	notBefore := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	holderKey := mustKey(t)
	cert, err := cvc.SelfSignedCertificate("UTTERM00001", holderKey, notBefore, notBefore.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("build certificate: %v", err)
	}
	if err := store.Insert(context.Background(), cert, domain.RoleTerminal); err != nil {
		t.Fatalf("insert certificate: %v", err)
	}

	req := buildRequest(t, "UTTERM00002", mustKey(t), "UTTERM00001", holderKey)
	status, outer, err := v.CheckSemantics(context.Background(), req, cvc.P256Spec())
	if err != nil {
		t.Fatalf("CheckSemantics: %v", err)
	}
	if status != domain.StatusOKCertAvailable {
		t.Fatalf("status = %s, want %s", status, domain.StatusOKCertAvailable)
	}
	if outer == nil || outer.CHR != "UTTERM00001" {
		t.Fatalf("outer certificate = %+v, want UTTERM00001", outer)
	}
}
