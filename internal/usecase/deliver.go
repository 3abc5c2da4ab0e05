package usecase

import (
	"context"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

// SendCertificates handles a peer's push delivery for an earlier
// asynchronous exchange. An unknown correlation identifier is reported
// and changes nothing. The lookup and the resulting mutation run as one
// critical section on the outbound queue.
func (s *AuthorityService) SendCertificates(ctx context.Context, messageID string, statusInfo domain.StatusCode, blobs [][]byte) domain.StatusCode {
	result := domain.StatusFailureMessageIDUnknown
	found := s.Outbound.Update(messageID, func(sr *domain.ServiceRequest) {
		sr.StatusInfo = statusInfo

		// Decode everything before importing anything: one undecodable
		// certificate fails the whole delivery.
		certs := make([]*domain.Certificate, 0, len(blobs))
		for _, blob := range blobs {
			cert, err := s.Codec.DecodeCertificate(blob)
			if err != nil {
				sr.FinalStatusInfo = domain.StatusFailureSyntax
				result = domain.StatusFailureSyntax
				return
			}
			certs = append(certs, cert)
		}

		for _, w := range s.importDecoded(ctx, certs) {
			s.log().WithField("warning", w).Warn("certificate import")
		}

		sr.CertificateCount = len(certs)
		sr.FinalStatusInfo = domain.StatusOKReceivedCorrectly
		result = domain.StatusOKReceivedCorrectly
	})
	if !found {
		return domain.StatusFailureMessageIDUnknown
	}
	return result
}
