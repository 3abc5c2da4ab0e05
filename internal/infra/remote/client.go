// Package remote implements the outbound webservice calls: the client
// toward the parent authority and the sender that pushes deferred
// results to a peer's registered response URL. Certificates travel
// base64-encoded inside JSON envelopes.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aneury1/scsh-scripts/internal/domain"
	"github.com/aneury1/scsh-scripts/internal/usecase"
)

type callbackEnvelope struct {
	CallbackIndicator string `json:"callback_indicator"`
	MessageID         string `json:"message_id,omitempty"`
	ResponseURL       string `json:"response_url,omitempty"`
}

type certificatesResponse struct {
	ReturnCode   string   `json:"return_code"`
	Certificates []string `json:"certificates,omitempty"`
}

const defaultTimeout = 30 * time.Second

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ usecase.RemoteAuthority = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = client
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) GetCACertificates(ctx context.Context, cb usecase.Callback) (domain.StatusCode, [][]byte, error) {
	return c.exchange(ctx, "/getCACertificates", toEnvelope(cb))
}

func (c *Client) RequestCertificate(ctx context.Context, certReq []byte, cb usecase.Callback) (domain.StatusCode, [][]byte, error) {
	payload := struct {
		Request string `json:"request"`
		callbackEnvelope
	}{base64.StdEncoding.EncodeToString(certReq), toEnvelope(cb)}
	return c.exchange(ctx, "/requestCertificate", payload)
}

func (c *Client) exchange(ctx context.Context, path string, payload any) (domain.StatusCode, [][]byte, error) {
	if c.BaseURL == "" {
		return "", nil, fmt.Errorf("%w: parent URL not configured", domain.ErrRemoteCall)
	}
	var out certificatesResponse
	if err := postJSON(ctx, c.HTTPClient, c.BaseURL+path, payload, &out); err != nil {
		return "", nil, err
	}
	blobs, err := decodeBlobs(out.Certificates)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrRemoteCall, err)
	}
	return domain.StatusCode(out.ReturnCode), blobs, nil
}

// Sender delivers a deferred result to the response URL a peer
// registered when its request was queued.
type Sender struct {
	HTTPClient *http.Client
}

var _ usecase.ResponseSender = (*Sender)(nil)

type SenderOption func(*Sender)

func WithSenderHTTPClient(client *http.Client) SenderOption {
	return func(s *Sender) {
		s.HTTPClient = client
	}
}

func NewSender(opts ...SenderOption) *Sender {
	sender := &Sender{HTTPClient: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(sender)
	}
	return sender
}

func (s *Sender) SendCertificates(ctx context.Context, responseURL, messageID string, status domain.StatusCode, certificates [][]byte) error {
	if responseURL == "" {
		return fmt.Errorf("%w: no response URL registered", domain.ErrRemoteCall)
	}
	encoded := make([]string, 0, len(certificates))
	for _, blob := range certificates {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(blob))
	}
	payload := struct {
		MessageID    string   `json:"message_id"`
		StatusInfo   string   `json:"status_info"`
		Certificates []string `json:"certificates,omitempty"`
	}{messageID, string(status), encoded}

	var out struct {
		ReturnCode string `json:"return_code"`
	}
	endpoint := strings.TrimRight(responseURL, "/") + "/sendCertificates"
	if err := postJSON(ctx, s.HTTPClient, endpoint, payload, &out); err != nil {
		return err
	}
	if code := domain.StatusCode(out.ReturnCode); !code.OK() {
		return fmt.Errorf("%w: delivery rejected with %s", domain.ErrRemoteCall, code)
	}
	return nil
}

func toEnvelope(cb usecase.Callback) callbackEnvelope {
	return callbackEnvelope{
		CallbackIndicator: string(cb.Indicator),
		MessageID:         cb.MessageID,
		ResponseURL:       cb.ResponseURL,
	}
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteCall, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d body %s", domain.ErrRemoteCall, resp.StatusCode, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrRemoteCall, err)
	}
	return nil
}

func decodeBlobs(encoded []string) ([][]byte, error) {
	blobs := make([][]byte, 0, len(encoded))
	for i, e := range encoded {
		blob, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: invalid base64", i)
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}
