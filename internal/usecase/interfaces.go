package usecase

import (
	"context"
	"time"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

// CertificateStore persists the authority's certificate material: the
// published chain, issued terminal certificates, and the holder
// references derived from them.
type CertificateStore interface {
	// Chain returns the cvca and dvca certificates in storage order.
	Chain(ctx context.Context) ([]domain.Certificate, error)
	GetByHolder(ctx context.Context, chr string) (*domain.Certificate, error)
	// CurrentHolder is the newest dvca holder reference.
	CurrentHolder(ctx context.Context) (string, error)
	// ParentHolder is the newest cvca holder reference.
	ParentHolder(ctx context.Context) (string, error)
	// ActiveKeySpec is the algorithm and domain-parameter set incoming
	// requests must match.
	ActiveKeySpec(ctx context.Context) (domain.KeySpec, error)
	// Insert rejects duplicates, unknown issuers and signature-chain
	// failures with the corresponding domain errors.
	Insert(ctx context.Context, cert *domain.Certificate, role domain.CertificateRole) error
}

// Codec decodes wire blobs into the structured forms.
type Codec interface {
	DecodeRequest(raw []byte) (*domain.CertificateRequest, error)
	DecodeCertificate(raw []byte) (*domain.Certificate, error)
}

// Verifier checks request signatures.
type Verifier interface {
	VerifyInner(req *domain.CertificateRequest) error
	VerifyOuter(req *domain.CertificateRequest, signer domain.PublicKeyInfo) error
}

// Issuer generates certificates and outbound certificate requests under
// the authority's signing identity.
type Issuer interface {
	Issue(ctx context.Context, req *domain.CertificateRequest, validity time.Duration) (*domain.Certificate, error)
	BuildRequest(ctx context.Context, spec domain.KeySpec, initial bool) ([]byte, error)
	HolderPrefix() string
	ConfirmIssued(chr string) bool
}

// Callback carries a caller's asynchronous-response capability.
type Callback struct {
	Indicator   domain.CallbackIndicator
	MessageID   string
	ResponseURL string
}

func (c Callback) Possible() bool {
	return c.Indicator.Possible()
}

// RemoteAuthority performs the two outbound calls toward the parent.
// Transport failures are reported as errors wrapping
// domain.ErrRemoteCall; they are never retried here.
type RemoteAuthority interface {
	GetCACertificates(ctx context.Context, cb Callback) (domain.StatusCode, [][]byte, error)
	RequestCertificate(ctx context.Context, certReq []byte, cb Callback) (domain.StatusCode, [][]byte, error)
}

// ResponseSender pushes a deferred result to the response URL a caller
// registered when its request was queued.
type ResponseSender interface {
	SendCertificates(ctx context.Context, responseURL, messageID string, status domain.StatusCode, certificates [][]byte) error
}
