package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aneury1/scsh-scripts/internal/domain"
	"github.com/aneury1/scsh-scripts/internal/policy"
	"github.com/aneury1/scsh-scripts/internal/queue"
)

// AuthorityService coordinates the DVCA's request/response protocol: it
// drives validation, policy and issuance for inbound requests, and the
// renewal exchanges with the parent authority for outbound ones. All
// mutable protocol state lives in the two correlation queues it owns.
type AuthorityService struct {
	Validator *RequestValidator
	Policy    *policy.Engine
	Store     CertificateStore
	Issuer    Issuer
	Codec     Codec
	Remote    RemoteAuthority
	Sender    ResponseSender

	Inbound  *queue.Queue
	Outbound *queue.Queue

	// CallbackURL is this authority's own delivery endpoint, registered
	// with the parent on asynchronous outbound exchanges.
	CallbackURL string

	Log *logrus.Logger
	Now func() time.Time

	// NewMessageID generates correlation identifiers for asynchronous
	// outbound exchanges.
	NewMessageID func() string
}

func (s *AuthorityService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthorityService) log() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

// GetCACertificates answers a chain request. Callback-capable callers
// are queued for a deferred answer and acknowledged with ok_syntax;
// everyone else gets the full chain immediately.
func (s *AuthorityService) GetCACertificates(ctx context.Context, cb Callback) (domain.StatusCode, []domain.Certificate, error) {
	if cb.Possible() {
		sr := &domain.ServiceRequest{
			MessageID:   cb.MessageID,
			ResponseURL: cb.ResponseURL,
			StatusInfo:  domain.StatusOKSyntax,
		}
		if evicted := s.Inbound.Enqueue(sr); evicted != nil {
			s.log().WithField("message_id", evicted.MessageID).Warn("inbound queue full, evicted oldest entry")
		}
		return domain.StatusOKSyntax, nil, nil
	}
	chain, err := s.Store.Chain(ctx)
	if err != nil {
		return domain.StatusFailureDeviceError, nil, err
	}
	return domain.StatusOKCertAvailable, chain, nil
}

// RequestCertificate drives the inbound issuance flow: syntax check,
// semantic check, policy decision, then immediate issuance, queueing or
// rejection.
func (s *AuthorityService) RequestCertificate(ctx context.Context, raw []byte, cb Callback) (domain.StatusCode, []domain.Certificate, error) {
	req, status := s.Validator.CheckSyntax(raw)
	if status != domain.StatusOKCertAvailable {
		return domain.StatusFailureSyntax, nil, nil
	}

	spec, err := s.Store.ActiveKeySpec(ctx)
	if err != nil {
		return domain.StatusFailureDeviceError, nil, err
	}
	semantic, outer, err := s.Validator.CheckSemantics(ctx, req, spec)
	if err != nil {
		return domain.StatusFailureDeviceError, nil, err
	}

	var outerExpiry time.Time
	if outer != nil {
		outerExpiry = outer.NotAfter
	}
	decision := s.Policy.Decide(req, semantic, cb.Possible(), outerExpiry, s.now())

	switch decision {
	case domain.StatusOKCertAvailable:
		certs, err := s.issue(ctx, req)
		if err != nil {
			return domain.StatusFailureDeviceError, nil, err
		}
		return domain.StatusOKCertAvailable, certs, nil

	case domain.StatusOKSyntax:
		sr := &domain.ServiceRequest{
			MessageID:   cb.MessageID,
			ResponseURL: cb.ResponseURL,
			Request:     req,
			StatusInfo:  domain.StatusOKSyntax,
		}
		if evicted := s.Inbound.Enqueue(sr); evicted != nil {
			s.log().WithField("message_id", evicted.MessageID).Warn("inbound queue full, evicted oldest entry")
		}
		return domain.StatusOKSyntax, nil, nil

	default:
		return decision, nil, nil
	}
}

// issue produces the new certificate, persists it and appends it to the
// certificate list owed to the requester.
func (s *AuthorityService) issue(ctx context.Context, req *domain.CertificateRequest) ([]domain.Certificate, error) {
	certs, err := s.certificateList(ctx, req)
	if err != nil {
		return nil, err
	}
	p := s.Policy.Resolve(req.CHR)
	cert, err := s.Issuer.Issue(ctx, req, p.CertificateValidity)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Insert(ctx, cert, domain.RoleTerminal); err != nil {
		return nil, fmt.Errorf("persist issued certificate: %w", err)
	}
	return append(certs, *cert), nil
}

// certificateList determines the chain owed alongside a new
// certificate: empty when the requester already references this
// authority's current identity, the full chain otherwise.
func (s *AuthorityService) certificateList(ctx context.Context, req *domain.CertificateRequest) ([]domain.Certificate, error) {
	if req.Authenticated() {
		current, err := s.Store.CurrentHolder(ctx)
		if err == nil && req.OuterCAR == current {
			return nil, nil
		}
	}
	return s.Store.Chain(ctx)
}

// ProcessQueued re-evaluates a queued inbound entry and delivers the
// result to its registered response URL. The entry is removed once
// delivery succeeds.
func (s *AuthorityService) ProcessQueued(ctx context.Context, messageID string) (domain.StatusCode, error) {
	sr, ok := s.Inbound.FindByMessageID(messageID)
	if !ok {
		return domain.StatusFailureMessageIDUnknown, domain.ErrNotFound
	}
	// Request and ResponseURL are fixed at enqueue time; the status
	// fields are only ever written under the queue lock.
	req, responseURL := sr.Request, sr.ResponseURL

	var status domain.StatusCode
	var certs []domain.Certificate
	if req == nil {
		chain, err := s.Store.Chain(ctx)
		if err != nil {
			return domain.StatusFailureDeviceError, err
		}
		status, certs = domain.StatusOKCertAvailable, chain
	} else {
		spec, err := s.Store.ActiveKeySpec(ctx)
		if err != nil {
			return domain.StatusFailureDeviceError, err
		}
		semantic, _, err := s.Validator.CheckSemantics(ctx, req, spec)
		if err != nil {
			return domain.StatusFailureDeviceError, err
		}
		status = semantic
		if semantic == domain.StatusOKCertAvailable {
			if certs, err = s.issue(ctx, req); err != nil {
				return domain.StatusFailureDeviceError, err
			}
		}
	}
	s.Inbound.Update(messageID, func(e *domain.ServiceRequest) {
		e.StatusInfo = status
	})

	blobs := make([][]byte, 0, len(certs))
	for _, c := range certs {
		blobs = append(blobs, c.Raw)
	}
	if err := s.Sender.SendCertificates(ctx, responseURL, messageID, status, blobs); err != nil {
		return status, fmt.Errorf("deliver queued response: %w", err)
	}
	if done, ok := s.Inbound.Remove(messageID); ok {
		// Removed from the queue, so no longer shared.
		done.FinalStatusInfo = status
		done.CertificateCount = len(blobs)
	}
	return status, nil
}

// DeleteQueued discards a queued inbound entry without completing it.
func (s *AuthorityService) DeleteQueued(messageID string) bool {
	sr, ok := s.Inbound.Remove(messageID)
	if ok {
		sr.FinalStatusInfo = domain.StatusFailureSyncProcessing
	}
	return ok
}

// importCertificates decodes and stores a batch of certificates
// delivered by the parent. Rejections are collected as warnings and
// never abort the batch.
func (s *AuthorityService) importCertificates(ctx context.Context, blobs [][]byte) []string {
	var certs []*domain.Certificate
	var warnings []string
	for i, blob := range blobs {
		cert, err := s.Codec.DecodeCertificate(blob)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("certificate %d: decode failed", i))
			continue
		}
		certs = append(certs, cert)
	}
	warnings = append(warnings, s.importDecoded(ctx, certs)...)
	for _, w := range warnings {
		s.log().WithField("warning", w).Warn("certificate import")
	}
	return warnings
}

func (s *AuthorityService) importDecoded(ctx context.Context, certs []*domain.Certificate) []string {
	var warnings []string
	prefix := s.Issuer.HolderPrefix()
	for _, cert := range certs {
		role := domain.RoleCVCA
		if strings.HasPrefix(cert.CHR, prefix) {
			role = domain.RoleDVCA
		}
		if err := s.Store.Insert(ctx, cert, role); err != nil {
			warnings = append(warnings, fmt.Sprintf("certificate %s: %v", cert.CHR, err))
			continue
		}
		if role == domain.RoleDVCA && s.Issuer.ConfirmIssued(cert.CHR) {
			s.log().WithField("chr", cert.CHR).Info("activated renewed authority key")
		}
	}
	return warnings
}
