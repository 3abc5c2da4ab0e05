package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

// RequestValidator checks a raw certificate request in two independent
// stages: syntax (decoding) and semantics (signatures and key
// specification).
type RequestValidator struct {
	Codec    Codec
	Verifier Verifier
	Store    CertificateStore
}

// CheckSyntax decodes the transport-level structure. Decode failures
// yield failure_syntax and a nil request; they never propagate.
func (v *RequestValidator) CheckSyntax(raw []byte) (*domain.CertificateRequest, domain.StatusCode) {
	req, err := v.Codec.DecodeRequest(raw)
	if err != nil {
		return nil, domain.StatusFailureSyntax
	}
	return req, domain.StatusOKCertAvailable
}

// CheckSemantics evaluates the fixed check sequence against the
// authority's active key specification, short-circuiting on the first
// failure. For authenticated requests the resolved outer certificate is
// returned alongside the outcome. The error channel carries only
// unexpected collaborator faults, never validation outcomes.
func (v *RequestValidator) CheckSemantics(ctx context.Context, req *domain.CertificateRequest, spec domain.KeySpec) (domain.StatusCode, *domain.Certificate, error) {
	// 1. Inner signature with the request's own key.
	if err := v.Verifier.VerifyInner(req); err != nil {
		return domain.StatusFailureInnerSignature, nil, nil
	}

	// 2. Declared algorithm against the active one. A mismatch is
	// malformed input, not a trust failure.
	if req.PublicKey.Algorithm != spec.Algorithm {
		return domain.StatusFailureSyntax, nil, nil
	}

	// 3. Every domain-parameter component individually.
	if !req.PublicKey.Params.Equal(spec.Params) {
		return domain.StatusFailureSyntax, nil, nil
	}

	// 4. Outer signature against the referenced certificate's key.
	if req.Authenticated() {
		outer, err := v.Store.GetByHolder(ctx, req.OuterCAR)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.StatusFailureOuterSignature, nil, nil
			}
			return "", nil, fmt.Errorf("resolve outer certificate %s: %w", req.OuterCAR, err)
		}
		if err := v.Verifier.VerifyOuter(req, outer.PublicKey); err != nil {
			return domain.StatusFailureOuterSignature, nil, nil
		}
		return domain.StatusOKCertAvailable, outer, nil
	}

	// 5. Initial request: semantics pass.
	return domain.StatusOKCertAvailable, nil, nil
}
