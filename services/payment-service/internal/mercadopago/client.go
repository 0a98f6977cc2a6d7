package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.mercadopago.com"

// Sentinel errors for the provider taxonomy. Callers branch with errors.Is;
// the wrapped error keeps the raw provider payload for diagnostics.
var (
	ErrUnavailable = errors.New("mercado pago unavailable")
	ErrRejected    = errors.New("mercado pago rejected request")
	ErrNotFound    = errors.New("mercado pago payment not found")
)

// Client is a thin REST client for the Mercado Pago checkout API. It holds
// no per-tenant state: the admin's access token is passed per call because
// credentials are tenant-scoped.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type Payer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type PreferenceRequest struct {
	AmountCents       int64
	Currency          string
	Description       string
	Payer             Payer
	BackURLs          BackURLs
	NotificationURL   string
	ExternalReference string
}

type Preference struct {
	ID          string
	CheckoutURL string
}

// CreatePreference creates a checkout preference and returns the redirect
// URL the payer is sent to. The external reference is the join key the
// reconciler uses later; it must be generated before this call.
func (c *Client) CreatePreference(ctx context.Context, accessToken string, req PreferenceRequest) (Preference, error) {
	body := map[string]any{
		"items": []preferenceItem{{
			Title:      req.Description,
			Quantity:   1,
			UnitPrice:  float64(req.AmountCents) / 100,
			CurrencyID: req.Currency,
		}},
		"payer":              req.Payer,
		"back_urls":          req.BackURLs,
		"external_reference": req.ExternalReference,
		"auto_return":        "approved",
	}
	if req.NotificationURL != "" {
		body["notification_url"] = req.NotificationURL
	}

	var resp struct {
		ID               string `json:"id"`
		InitPoint        string `json:"init_point"`
		SandboxInitPoint string `json:"sandbox_init_point"`
	}
	if err := c.do(ctx, accessToken, http.MethodPost, "/checkout/preferences", body, &resp); err != nil {
		return Preference{}, err
	}

	checkoutURL := resp.InitPoint
	if checkoutURL == "" {
		checkoutURL = resp.SandboxInitPoint
	}
	if resp.ID == "" || checkoutURL == "" {
		return Preference{}, fmt.Errorf("%w: preference response missing id or init_point", ErrRejected)
	}
	return Preference{ID: resp.ID, CheckoutURL: checkoutURL}, nil
}

type Payment struct {
	ID                string
	Status            string // normalized: approved | pending | rejected | cancelled
	ProviderStatus    string // raw Mercado Pago status
	ExternalReference string
	AmountCents       int64
	Raw               json.RawMessage
}

// GetPayment fetches the authoritative payment state. This is the single
// source of truth during reconciliation: webhook payloads are never trusted
// without this confirmation.
func (c *Client) GetPayment(ctx context.Context, accessToken, paymentID string) (Payment, error) {
	var resp struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		ExternalReference string      `json:"external_reference"`
		TransactionAmount float64     `json:"transaction_amount"`
	}
	raw, err := c.doRaw(ctx, accessToken, http.MethodGet, "/v1/payments/"+paymentID, nil)
	if err != nil {
		return Payment{}, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Payment{}, fmt.Errorf("%w: invalid payment payload: %v", ErrUnavailable, err)
	}
	return Payment{
		ID:                resp.ID.String(),
		Status:            NormalizeStatus(resp.Status),
		ProviderStatus:    resp.Status,
		ExternalReference: resp.ExternalReference,
		AmountCents:       int64(resp.TransactionAmount*100 + 0.5),
		Raw:               raw,
	}, nil
}

// NormalizeStatus folds Mercado Pago's status vocabulary into the four
// statuses the reconciler understands.
func NormalizeStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "approved":
		return "approved"
	case "rejected":
		return "rejected"
	case "cancelled", "refunded", "charged_back":
		return "cancelled"
	default:
		// pending, in_process, in_mediation, authorized, unknown
		return "pending"
	}
}

func (c *Client) do(ctx context.Context, accessToken, method, path string, reqBody any, out any) error {
	raw, err := c.doRaw(ctx, accessToken, method, path, reqBody)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: invalid response payload: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, accessToken, method, path string, reqBody any) ([]byte, error) {
	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return payload, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(payload)))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(payload)))
	default:
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
}
