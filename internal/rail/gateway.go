package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a gateway error response is read.
const maxErrorBody = 4 << 10

// accountInfo is the gateway's account representation.
type accountInfo struct {
	Address  string  `json:"address"`
	Network  string  `json:"network"`
	Balance  float64 `json:"balance"`
	Sequence int64   `json:"sequence"`
}

// paymentRequest is the gateway's payment submission body.
type paymentRequest struct {
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Amount      float64 `json:"amount"`
	Memo        string  `json:"memo,omitempty"`
}

// paymentResult is the gateway's acceptance response.
type paymentResult struct {
	TxID string  `json:"tx_id"`
	Fee  float64 `json:"fee"`
}

// errorBody is the gateway's error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// gateway speaks raw HTTP to the payment rail. It classifies every failure
// into an *Error; policy (retries, preflight checks) lives in Client.
type gateway struct {
	baseURL string
	token   string
	client  *http.Client
}

func (g *gateway) getAccount(ctx context.Context, address string) (*accountInfo, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s", g.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build account request: %w", err)
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var account accountInfo
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode account response: %w", err)
	}
	return &account, nil
}

func (g *gateway) submitPayment(ctx context.Context, idempotencyKey string, payment paymentRequest) (*paymentResult, error) {
	body, err := json.Marshal(payment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var result paymentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode payment response: %w", err)
	}
	return &result, nil
}

func (g *gateway) authorize(req *http.Request) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}

// decodeError turns a non-success gateway response into a classified *Error.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	code := ""
	message := strings.TrimSpace(string(raw))
	var parsed errorBody
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Code != "" {
		code = parsed.Error.Code
		message = parsed.Error.Message
	}
	if message == "" {
		message = fmt.Sprintf("unexpected status code %d", resp.StatusCode)
	}

	return &Error{
		Kind:    classifyKind(code, resp.StatusCode),
		Status:  resp.StatusCode,
		Message: message,
	}
}

// transportError classifies a failure to reach the gateway at all. When the
// caller's context is already dead its error passes through unclassified so
// retry loops stop with the run; a per-request timeout stays retryable.
func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: err.Error()}
	}
	return &Error{Kind: KindUnavailable, Message: err.Error()}
}
