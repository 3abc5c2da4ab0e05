package domain

// CertificateRequest is a decoded certificate request. Body is the
// portion covered by the inner signature; an authenticated request
// additionally carries an outer signature over the full inner structure,
// referencing a previously issued certificate by OuterCAR.
type CertificateRequest struct {
	Raw       []byte
	CHR       string
	PublicKey PublicKeyInfo

	Body           []byte
	InnerSignature []byte

	OuterCAR       string
	OuterBody      []byte
	OuterSignature []byte
}

// Authenticated reports whether the request carries an outer signature
// proving continuity with a previously issued certificate.
func (r *CertificateRequest) Authenticated() bool {
	return r.OuterCAR != ""
}

// ServiceRequest is one unit of in-flight protocol state, owned by
// whichever correlation queue holds it.
type ServiceRequest struct {
	// MessageID is the correlation identifier; empty for synchronous
	// exchanges.
	MessageID   string
	ResponseURL string

	// Request is the embedded certificate request; nil for list-only
	// exchanges.
	Request *CertificateRequest

	// StatusInfo tracks the current outcome as stages complete;
	// FinalStatusInfo is set exactly once when the exchange concludes.
	StatusInfo      StatusCode
	FinalStatusInfo StatusCode

	// CertificateCount records how many certificates a concluded
	// outbound exchange delivered.
	CertificateCount int
}

func (s *ServiceRequest) Asynchronous() bool {
	return s.MessageID != ""
}
