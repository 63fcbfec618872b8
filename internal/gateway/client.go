// Package gateway is the thin boundary to the external payment provider.
// It builds the authenticated session request and translates provider
// responses and status vocabulary into the engine's own.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindRejected          ErrorKind = "rejected"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// Error is a provider failure translated into engine vocabulary.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Session is the provider's answer to a create-session call.
type Session struct {
	CheckoutURL      string
	GatewaySessionID string
}

// Client talks to the payment provider over HTTP with a bounded timeout.
// On timeout the intent stays PENDING; the provider side may still complete
// the payment and deliver a webhook later.
type Client struct {
	baseURL    string
	secretKey  string
	returnURL  string
	httpClient *http.Client
}

// NewClient constructs a provider client.
func NewClient(baseURL, secretKey, returnURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		secretKey:  secretKey,
		returnURL:  returnURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type createSessionRequest struct {
	OrderRef  string `json:"order_ref"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Subject   string `json:"subject"`
	ReturnURL string `json:"return_url,omitempty"`
}

type createSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
}

// CreateCheckoutSession opens a checkout session for the intent. The caller
// persists the returned session id onto the intent before handing the
// checkout URL to the client.
func (c *Client) CreateCheckoutSession(ctx context.Context, intent *models.PaymentIntent) (*Session, error) {
	body := createSessionRequest{
		OrderRef:  intent.OrderRef,
		Amount:    intent.Amount,
		Currency:  intent.Currency,
		Subject:   fmt.Sprintf("Court %d %s %s", intent.ResourceID, intent.Date, intent.StartTime),
		ReturnURL: c.returnURL,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindRejected, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Kind: KindRejected, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, &Error{Kind: KindRejected, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: err}
	}
	if out.SessionID == "" || out.CheckoutURL == "" {
		return nil, &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("missing session_id or checkout_url")}
	}

	return &Session{CheckoutURL: out.CheckoutURL, GatewaySessionID: out.SessionID}, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
