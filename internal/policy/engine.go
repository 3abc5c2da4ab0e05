// Package policy decides what issuance policy applies to a requester
// identity and whether a request is pre-authorized for issuance.
package policy

import (
	"fmt"
	"time"

	"github.com/gobwas/glob"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

type rule struct {
	pattern string
	matcher glob.Glob
	policy  domain.Policy
}

// Engine holds an ordered list of (pattern, policy) rules plus a default
// policy. Insertion order is priority order; the first matching rule
// wins. Rules are installed at startup and read-only afterwards.
type Engine struct {
	rules []rule
	def   domain.Policy
}

// NewEngine requires the default policy up front; a missing default is a
// configuration error, not a runtime fault.
func NewEngine(def domain.Policy) *Engine {
	return &Engine{def: def}
}

// AddRule appends a rule with the given glob pattern over holder
// references, e.g. "UTTERM*".
func (e *Engine) AddRule(pattern string, p domain.Policy) error {
	m, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("policy pattern %q: %w", pattern, err)
	}
	e.rules = append(e.rules, rule{pattern: pattern, matcher: m, policy: p})
	return nil
}

// Resolve returns the policy of the first rule matching identity, or the
// default policy if none match.
func (e *Engine) Resolve(identity string) domain.Policy {
	for _, r := range e.rules {
		if r.matcher.Match(identity) {
			return r.policy
		}
	}
	return e.def
}

// Decide maps a semantic validation outcome to the terminal decision for
// an inbound certificate request. Semantic failures pass through
// unchanged; policy never overrides them.
//
// outerExpiry is the expiry of the resolved outer certificate and is
// only consulted for authenticated requests. The comparison reference is
// "now" normalized to noon, so a certificate stays usable through its
// whole expiry day.
func (e *Engine) Decide(req *domain.CertificateRequest, semantic domain.StatusCode, callbackPossible bool, outerExpiry time.Time, now time.Time) domain.StatusCode {
	if semantic != domain.StatusOKCertAvailable {
		return semantic
	}
	p := e.Resolve(req.CHR)

	if req.Authenticated() {
		ref := noon(now)
		expired := outerExpiry.Before(ref)
		if expired && p.DeclineExpiredAuthenticatedRequest {
			return domain.StatusFailureOuterSignature
		}
		if !expired && p.AuthenticatedRequestsApproved {
			return domain.StatusOKCertAvailable
		}
	} else if p.InitialRequestsApproved {
		return domain.StatusOKCertAvailable
	}

	if callbackPossible {
		return domain.StatusOKSyntax
	}
	return domain.StatusFailureSyncProcessing
}

func noon(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}
