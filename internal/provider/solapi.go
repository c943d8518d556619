package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"smscast/internal/auth"
	"smscast/pkg/logx"
)

const DefaultEndpoint = "https://api.solapi.com/messages/v4/send"

// Solapi sends messages through the Solapi HTTP API.
// Every request carries a fresh signed credential from the Signer.
type Solapi struct {
	log        logx.Logger
	httpClient *http.Client
	signer     *auth.Signer

	mu       sync.RWMutex
	endpoint string
}

func NewSolapi(log logx.Logger, signer *auth.Signer, endpoint string, httpClient *http.Client) *Solapi {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Solapi{
		log:        log.With(logx.String("provider", "solapi")),
		httpClient: httpClient,
		signer:     signer,
		endpoint:   endpoint,
	}
}

func (p *Solapi) Name() string { return "solapi" }

// Apply swaps the send URL. An empty value restores the default.
func (p *Solapi) Apply(endpoint string) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	p.mu.Lock()
	p.endpoint = endpoint
	p.mu.Unlock()
}

func (p *Solapi) sendURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoint
}

type solapiRequest struct {
	Message solapiMessage `json:"message"`
}

type solapiMessage struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

type solapiResponse struct {
	MessageID    string `json:"messageId"`
	StatusCode   string `json:"statusCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (p *Solapi) Send(ctx context.Context, msg Message) (*SendResult, error) {
	cred, err := p.signer.Sign()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(solapiRequest{Message: solapiMessage{To: msg.To, From: msg.From, Text: msg.Text}})
	if err != nil {
		return nil, fmt.Errorf("solapi: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sendURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("solapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", cred.Header())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solapi: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("solapi: read response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sendErr := &SendError{StatusCode: resp.StatusCode}
		var parsed solapiResponse
		if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.ErrorMessage != "" {
			sendErr.Message = parsed.ErrorMessage
		}
		p.log.Warn("send rejected",
			logx.String("to", msg.To),
			logx.Int("status", resp.StatusCode),
			logx.String("provider_error", sendErr.Message))
		return nil, sendErr
	}

	var parsed solapiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// HTTP says accepted; tolerate an unparseable body but lose the id.
		p.log.Warn("send accepted with unparseable body", logx.Int("status", resp.StatusCode), logx.Err(err))
		return &SendResult{StatusCode: resp.StatusCode}, nil
	}

	p.log.Debug("send accepted",
		logx.String("to", msg.To),
		logx.Int("status", resp.StatusCode),
		logx.String("message_id", parsed.MessageID))
	return &SendResult{MessageID: parsed.MessageID, StatusCode: resp.StatusCode}, nil
}
