package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

// outboundCallback describes this authority toward its parent for an
// exchange in the requested mode.
func (s *AuthorityService) outboundCallback(asynchronous bool) Callback {
	cb := Callback{Indicator: domain.CallbackNotPossible}
	if asynchronous {
		cb.Indicator = domain.CallbackPossible
		cb.ResponseURL = s.CallbackURL
		if s.NewMessageID != nil {
			cb.MessageID = s.NewMessageID()
		} else {
			cb.MessageID = uuid.NewString()
		}
	}
	return cb
}

// enqueueOutbound registers sr so a parent push arriving while the
// exchange is still in flight can correlate against it.
func (s *AuthorityService) enqueueOutbound(sr *domain.ServiceRequest) {
	if evicted := s.Outbound.Enqueue(sr); evicted != nil {
		s.log().WithField("message_id", evicted.MessageID).Warn("outbound queue full, evicted oldest entry")
	}
}

// recordOutbound applies fn to the exchange's tracking entry. An entry
// that is already enqueued is shared with the delivery endpoint, so it
// is only touched under the queue lock; the parent's push may even
// conclude the exchange before our acknowledgement is read, in which
// case the concluded state wins. A synchronous entry is still private,
// so it is completed first and enqueued afterwards.
func (s *AuthorityService) recordOutbound(enqueued bool, sr *domain.ServiceRequest, fn func(*domain.ServiceRequest)) {
	if enqueued {
		s.Outbound.Update(sr.MessageID, func(e *domain.ServiceRequest) {
			if e.FinalStatusInfo == "" {
				fn(e)
			}
		})
		return
	}
	fn(sr)
	s.enqueueOutbound(sr)
}

// UpdateCACertificates fetches the parent's certificate chain and
// imports it. In asynchronous mode the parent acknowledges and later
// pushes the chain to CallbackURL, correlated through the outbound
// queue. Remote failure aborts the flow.
func (s *AuthorityService) UpdateCACertificates(ctx context.Context, asynchronous bool) ([]string, error) {
	cb := s.outboundCallback(asynchronous)
	sr := &domain.ServiceRequest{
		MessageID:   cb.MessageID,
		ResponseURL: cb.ResponseURL,
	}
	if asynchronous {
		s.enqueueOutbound(sr)
	}

	status, blobs, err := s.Remote.GetCACertificates(ctx, cb)
	if err != nil {
		s.recordOutbound(asynchronous, sr, func(e *domain.ServiceRequest) {
			e.FinalStatusInfo = domain.StatusFailureDeviceError
		})
		return nil, fmt.Errorf("fetch parent chain: %w", err)
	}

	if asynchronous && status == domain.StatusOKSyntax {
		// Completion arrives later through SendCertificates.
		s.recordOutbound(true, sr, func(e *domain.ServiceRequest) {
			e.StatusInfo = status
		})
		return nil, nil
	}

	warnings := s.importCertificates(ctx, blobs)
	s.recordOutbound(asynchronous, sr, func(e *domain.ServiceRequest) {
		e.StatusInfo = status
		e.CertificateCount = len(blobs)
		e.FinalStatusInfo = status
	})
	return warnings, nil
}

// RenewCertificate runs the outbound renewal flow: read the active key
// specification, build a request toward the parent, submit it, and
// import whatever comes back. Import rejections are warnings; a failed
// remote call is fatal to the flow.
func (s *AuthorityService) RenewCertificate(ctx context.Context, asynchronous, initial bool) ([]string, error) {
	spec, err := s.Store.ActiveKeySpec(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active key specification: %w", err)
	}

	raw, err := s.Issuer.BuildRequest(ctx, spec, initial)
	if err != nil {
		return nil, fmt.Errorf("build certificate request: %w", err)
	}

	cb := s.outboundCallback(asynchronous)
	sr := &domain.ServiceRequest{
		MessageID:   cb.MessageID,
		ResponseURL: cb.ResponseURL,
	}
	if req, decodeErr := s.Codec.DecodeRequest(raw); decodeErr == nil {
		sr.Request = req
	}
	if asynchronous {
		s.enqueueOutbound(sr)
	}

	status, blobs, err := s.Remote.RequestCertificate(ctx, raw, cb)
	if err != nil {
		s.recordOutbound(asynchronous, sr, func(e *domain.ServiceRequest) {
			e.FinalStatusInfo = domain.StatusFailureDeviceError
		})
		return nil, fmt.Errorf("submit certificate request: %w", err)
	}

	if asynchronous && status == domain.StatusOKSyntax {
		s.recordOutbound(true, sr, func(e *domain.ServiceRequest) {
			e.StatusInfo = status
		})
		return nil, nil
	}

	warnings := s.importCertificates(ctx, blobs)
	s.recordOutbound(asynchronous, sr, func(e *domain.ServiceRequest) {
		e.StatusInfo = status
		e.CertificateCount = len(blobs)
		e.FinalStatusInfo = status
	})
	return warnings, nil
}
