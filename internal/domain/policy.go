package domain

import "time"

// Policy is a named set of issuance switches and parameters. Immutable
// once installed; the engine looks policies up but never mutates them.
type Policy struct {
	Name string

	InitialRequestsApproved            bool
	AuthenticatedRequestsApproved      bool
	DeclineExpiredAuthenticatedRequest bool

	// CertificateValidity is forwarded to certificate generation.
	CertificateValidity time.Duration
}
