package http

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aneury1/scsh-scripts/internal/domain"
	"github.com/aneury1/scsh-scripts/internal/usecase"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type callbackRequest struct {
	CallbackIndicator string `json:"callback_indicator"`
	MessageID         string `json:"message_id,omitempty"`
	ResponseURL       string `json:"response_url,omitempty"`
}

type certificateRequestInput struct {
	Request string `json:"request"`
	callbackRequest
}

type sendCertificatesInput struct {
	MessageID    string   `json:"message_id"`
	StatusInfo   string   `json:"status_info"`
	Certificates []string `json:"certificates,omitempty"`
}

type certificatesResponse struct {
	ReturnCode   string   `json:"return_code"`
	Certificates []string `json:"certificates,omitempty"`
}

type returnCodeResponse struct {
	ReturnCode string `json:"return_code"`
}

type queueEntryResponse struct {
	MessageID        string `json:"message_id"`
	ResponseURL      string `json:"response_url,omitempty"`
	StatusInfo       string `json:"status_info,omitempty"`
	FinalStatusInfo  string `json:"final_status_info,omitempty"`
	CertificateCount int    `json:"certificate_count"`
	HasRequest       bool   `json:"has_request"`
}

type renewalInput struct {
	Asynchronous bool `json:"asynchronous"`
	Initial      bool `json:"initial"`
}

type renewalResponse struct {
	Warnings []string `json:"warnings,omitempty"`
}

// parseCallback validates the caller's callback declaration. A caller
// announcing callback capability must also supply the correlation
// identifier and the delivery endpoint.
func parseCallback(in callbackRequest) (usecase.Callback, bool) {
	switch domain.CallbackIndicator(in.CallbackIndicator) {
	case domain.CallbackPossible:
		if in.MessageID == "" || in.ResponseURL == "" {
			return usecase.Callback{}, false
		}
		return usecase.Callback{
			Indicator:   domain.CallbackPossible,
			MessageID:   in.MessageID,
			ResponseURL: in.ResponseURL,
		}, true
	case domain.CallbackNotPossible, "":
		return usecase.Callback{Indicator: domain.CallbackNotPossible}, true
	default:
		return usecase.Callback{}, false
	}
}

func encodeCertificates(certs []domain.Certificate) []string {
	out := make([]string, 0, len(certs))
	for _, cert := range certs {
		out = append(out, base64.StdEncoding.EncodeToString(cert.Raw))
	}
	return out
}

func (s *Server) handleGetCACertificates(c *gin.Context) {
	if !s.enforceRateLimit(c, routeChainRead) {
		return
	}
	var in callbackRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	cb, ok := parseCallback(in)
	if !ok {
		c.JSON(http.StatusOK, certificatesResponse{ReturnCode: string(domain.StatusFailureSyntax)})
		return
	}
	status, certs, err := s.authority.GetCACertificates(c.Request.Context(), cb)
	if err != nil {
		s.logger.WithError(err).Error("getCACertificates failed")
	}
	c.JSON(http.StatusOK, certificatesResponse{
		ReturnCode:   string(status),
		Certificates: encodeCertificates(certs),
	})
}

func (s *Server) handleRequestCertificate(c *gin.Context) {
	if !s.enforceRateLimit(c, routeCertRequest) {
		return
	}
	var in certificateRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	cb, ok := parseCallback(in.callbackRequest)
	if !ok {
		c.JSON(http.StatusOK, certificatesResponse{ReturnCode: string(domain.StatusFailureSyntax)})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(in.Request)
	if err != nil {
		c.JSON(http.StatusOK, certificatesResponse{ReturnCode: string(domain.StatusFailureSyntax)})
		return
	}
	status, certs, err := s.authority.RequestCertificate(c.Request.Context(), raw, cb)
	if err != nil {
		s.logger.WithError(err).Error("requestCertificate failed")
	}
	c.JSON(http.StatusOK, certificatesResponse{
		ReturnCode:   string(status),
		Certificates: encodeCertificates(certs),
	})
}

func (s *Server) handleSendCertificates(c *gin.Context) {
	if !s.enforceRateLimit(c, routeCertDeliver) {
		return
	}
	var in sendCertificatesInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	blobs := make([][]byte, 0, len(in.Certificates))
	for _, e := range in.Certificates {
		blob, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			// Correlation is resolved before the certificates are
			// examined: hand the undecodable payload down so an unknown
			// message ID still wins over the syntax failure.
			blob = []byte(e)
		}
		blobs = append(blobs, blob)
	}
	status := s.authority.SendCertificates(c.Request.Context(), in.MessageID, domain.StatusCode(in.StatusInfo), blobs)
	c.JSON(http.StatusOK, returnCodeResponse{ReturnCode: string(status)})
}

func (s *Server) handleListInbound(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	c.JSON(http.StatusOK, buildQueueResponse(s.authority.Inbound.List()))
}

func (s *Server) handleListOutbound(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	c.JSON(http.StatusOK, buildQueueResponse(s.authority.Outbound.List()))
}

func buildQueueResponse(entries []domain.ServiceRequest) []queueEntryResponse {
	out := make([]queueEntryResponse, 0, len(entries))
	for _, sr := range entries {
		out = append(out, queueEntryResponse{
			MessageID:        sr.MessageID,
			ResponseURL:      sr.ResponseURL,
			StatusInfo:       string(sr.StatusInfo),
			FinalStatusInfo:  string(sr.FinalStatusInfo),
			CertificateCount: sr.CertificateCount,
			HasRequest:       sr.Request != nil,
		})
	}
	return out
}

func (s *Server) handleProcessQueued(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	status, err := s.authority.ProcessQueued(c.Request.Context(), c.Param("message_id"))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WithError(err).Error("process queued request failed")
	}
	if errors.Is(err, domain.ErrNotFound) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, returnCodeResponse{ReturnCode: string(status)})
}

func (s *Server) handleDeleteQueued(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if !s.authority.DeleteQueued(c.Param("message_id")) {
		writeError(c, domain.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRenewCertificate(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var in renewalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	warnings, err := s.authority.RenewCertificate(c.Request.Context(), in.Asynchronous, in.Initial)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, renewalResponse{Warnings: warnings})
}

func (s *Server) handleUpdateChain(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var in renewalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	warnings, err := s.authority.UpdateCACertificates(c.Request.Context(), in.Asynchronous)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, renewalResponse{Warnings: warnings})
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	key := c.GetHeader("X-Admin-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrDuplicate):
		status, code = http.StatusConflict, "DUPLICATE"
	case errors.Is(err, domain.ErrUnknownIssuer):
		status, code = http.StatusBadRequest, "UNKNOWN_ISSUER"
	case errors.Is(err, domain.ErrChainSignature):
		status, code = http.StatusBadRequest, "CHAIN_SIGNATURE"
	case errors.Is(err, domain.ErrNoDefault):
		status, code = http.StatusInternalServerError, "POLICY_INVALID"
	case errors.Is(err, domain.ErrRemoteCall):
		status, code = http.StatusBadGateway, "REMOTE_CALL"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
