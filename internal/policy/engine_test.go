package policy

import (
	"testing"
	"time"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

func TestResolveFirstMatchWins(t *testing.T) {
	def := domain.Policy{Name: "default"}
	a := domain.Policy{Name: "a"}
	b := domain.Policy{Name: "b"}

	e := NewEngine(def)
	if err := e.AddRule("UTTERM*", a); err != nil {
		t.Fatal(err)
	}
	if err := e.AddRule("UT*", b); err != nil {
		t.Fatal(err)
	}

	// matches both patterns; the first rule wins
	if got := e.Resolve("UTTERM00001"); got.Name != "a" {
		t.Fatalf("Resolve = %s, want a", got.Name)
	}
	if got := e.Resolve("UTDVCA00001"); got.Name != "b" {
		t.Fatalf("Resolve = %s, want b", got.Name)
	}
	if got := e.Resolve("DESSID00001"); got.Name != "default" {
		t.Fatalf("Resolve = %s, want default", got.Name)
	}
}

func TestDecidePassesThroughSemanticFailure(t *testing.T) {
	e := NewEngine(domain.Policy{InitialRequestsApproved: true})
	req := &domain.CertificateRequest{CHR: "UTTERM00001"}
	for _, code := range []domain.StatusCode{
		domain.StatusFailureSyntax,
		domain.StatusFailureInnerSignature,
		domain.StatusFailureOuterSignature,
	} {
		if got := e.Decide(req, code, true, time.Time{}, time.Now()); got != code {
			t.Errorf("Decide(%s) = %s, want pass-through", code, got)
		}
	}
}

func TestDecideInitialRequest(t *testing.T) {
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	req := &domain.CertificateRequest{CHR: "UTTERM00001"}

	approved := NewEngine(domain.Policy{InitialRequestsApproved: true})
	if got := approved.Decide(req, domain.StatusOKCertAvailable, false, time.Time{}, now); got != domain.StatusOKCertAvailable {
		t.Fatalf("approved initial: got %s", got)
	}

	declined := NewEngine(domain.Policy{InitialRequestsApproved: false})
	if got := declined.Decide(req, domain.StatusOKCertAvailable, true, time.Time{}, now); got != domain.StatusOKSyntax {
		t.Fatalf("declined with callback: got %s", got)
	}
	if got := declined.Decide(req, domain.StatusOKCertAvailable, false, time.Time{}, now); got != domain.StatusFailureSyncProcessing {
		t.Fatalf("declined without callback: got %s", got)
	}
}

func TestDecideAuthenticatedExpiry(t *testing.T) {
	req := &domain.CertificateRequest{CHR: "UTTERM00001", OuterCAR: "UTDVCA00001"}
	now := time.Date(2026, 8, 25, 18, 30, 0, 0, time.UTC)

	decline := NewEngine(domain.Policy{
		AuthenticatedRequestsApproved:      true,
		DeclineExpiredAuthenticatedRequest: true,
	})

	// expired against the noon reference
	expiry := time.Date(2026, 8, 24, 23, 59, 59, 0, time.UTC)
	if got := decline.Decide(req, domain.StatusOKCertAvailable, true, expiry, now); got != domain.StatusFailureOuterSignature {
		t.Fatalf("expired+decline: got %s", got)
	}

	// expiring later the same day: the noon reference keeps it valid
	expiry = time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	if got := decline.Decide(req, domain.StatusOKCertAvailable, false, expiry, now); got != domain.StatusOKCertAvailable {
		t.Fatalf("same-day expiry after noon: got %s", got)
	}

	// expired but the policy tolerates it: falls through to queueing
	tolerate := NewEngine(domain.Policy{
		AuthenticatedRequestsApproved:      true,
		DeclineExpiredAuthenticatedRequest: false,
	})
	expiry = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if got := tolerate.Decide(req, domain.StatusOKCertAvailable, true, expiry, now); got != domain.StatusOKSyntax {
		t.Fatalf("expired+tolerate with callback: got %s", got)
	}

	// valid but authenticated requests not auto-approved
	noAuto := NewEngine(domain.Policy{AuthenticatedRequestsApproved: false})
	expiry = now.Add(240 * time.Hour)
	if got := noAuto.Decide(req, domain.StatusOKCertAvailable, false, expiry, now); got != domain.StatusFailureSyncProcessing {
		t.Fatalf("valid without auto-approve: got %s", got)
	}
}

func TestLoadEngineFromBytes(t *testing.T) {
	data := []byte(`
default:
  name: default
  initial_requests_approved: false
  validity: 30d
rules:
  - pattern: "UTTERM*"
    policy:
      name: terminals
      initial_requests_approved: true
      authenticated_requests_approved: true
      validity: 720h
`)
	e, err := LoadEngineFromBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	p := e.Resolve("UTTERM00003")
	if p.Name != "terminals" || !p.InitialRequestsApproved {
		t.Fatalf("resolved %+v", p)
	}
	if p.CertificateValidity != 720*time.Hour {
		t.Fatalf("validity = %s", p.CertificateValidity)
	}
	if def := e.Resolve("OTHER"); def.Name != "default" || def.CertificateValidity != 30*24*time.Hour {
		t.Fatalf("default %+v", def)
	}
}

func TestLoadEngineRequiresDefault(t *testing.T) {
	_, err := LoadEngineFromBytes([]byte(`rules: []`))
	if err == nil {
		t.Fatal("expected error for missing default")
	}
}
