package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRequestFailed indicates an order create/status call did not produce a
// usable gateway response. Callers decide whether to retry.
var ErrRequestFailed = errors.New("gateway request failed")

// Gateway environments.
const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// Endpoints holds the three gateway URLs.
type Endpoints struct {
	Token  string
	Pay    string
	Status string
}

// EndpointsFor returns the URL set for a known gateway environment.
func EndpointsFor(env string) (Endpoints, error) {
	switch env {
	case EnvSandbox:
		return Endpoints{
			Token:  "https://api-preprod.phonepe.com/apis/pg-sandbox/v1/oauth/token",
			Pay:    "https://api-preprod.phonepe.com/apis/pg-sandbox/checkout/v2/pay",
			Status: "https://api-preprod.phonepe.com/apis/pg-sandbox/checkout/v2/order",
		}, nil
	case EnvProduction:
		return Endpoints{
			Token:  "https://api.phonepe.com/apis/identity-manager/v1/oauth/token",
			Pay:    "https://api.phonepe.com/apis/pg/checkout/v2/pay",
			Status: "https://api.phonepe.com/apis/pg/checkout/v2/order",
		}, nil
	default:
		return Endpoints{}, fmt.Errorf("unknown gateway environment %q", env)
	}
}

// Config configures a Client.
type Config struct {
	Endpoints Endpoints
	// Timeout bounds every outbound call. Defaults to 30s.
	Timeout time.Duration
	// RedirectBaseURL is where the payer lands after checkout; the order key
	// is appended as a query parameter.
	RedirectBaseURL string
}

// TokenProvider issues bearer tokens for outbound gateway calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the payment gateway's checkout API.
type Client struct {
	http         *http.Client
	endpoints    Endpoints
	tokens       TokenProvider
	redirectBase string
}

// NewClient constructs a gateway client.
func NewClient(cfg Config, tokens TokenProvider) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:         &http.Client{Timeout: timeout},
		endpoints:    cfg.Endpoints,
		tokens:       tokens,
		redirectBase: cfg.RedirectBaseURL,
	}
}

// MetaInfo carries opaque correlation fields echoed back by the gateway.
type MetaInfo struct {
	UDF1 string `json:"udf1,omitempty"`
	UDF2 string `json:"udf2,omitempty"`
	UDF3 string `json:"udf3,omitempty"`
	UDF4 string `json:"udf4,omitempty"`
	UDF5 string `json:"udf5,omitempty"`
}

// CreateOrderRequest describes one order-creation call.
type CreateOrderRequest struct {
	OrderKey    string
	AmountMinor int64
	ExpireAfter time.Duration
	Message     string
	Meta        MetaInfo
}

// CreateOrderResponse is the gateway's acknowledgment of a new order.
type CreateOrderResponse struct {
	RemoteOrderID string
	RedirectURL   string
	State         string
	ExpiresAt     time.Time
	Raw           json.RawMessage
}

type createOrderPayload struct {
	MerchantOrderID string      `json:"merchantOrderId"`
	Amount          int64       `json:"amount"`
	ExpireAfter     int64       `json:"expireAfter"`
	MetaInfo        MetaInfo    `json:"metaInfo"`
	PaymentFlow     paymentFlow `json:"paymentFlow"`
}

type paymentFlow struct {
	Type         string       `json:"type"`
	Message      string       `json:"message,omitempty"`
	MerchantURLs merchantURLs `json:"merchantUrls"`
}

type merchantURLs struct {
	RedirectURL string `json:"redirectUrl"`
}

type createOrderResult struct {
	OrderID     string `json:"orderId"`
	RedirectURL string `json:"redirectUrl"`
	State       string `json:"state"`
	ExpireAt    int64  `json:"expireAt"`
}

// CreateOrder registers a new checkout order with the gateway. The call is
// not retried; failures surface as ErrCredential or ErrRequestFailed.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResponse, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return CreateOrderResponse{}, err
	}

	payload := createOrderPayload{
		MerchantOrderID: req.OrderKey,
		Amount:          req.AmountMinor,
		ExpireAfter:     int64(req.ExpireAfter / time.Second),
		MetaInfo:        req.Meta,
		PaymentFlow: paymentFlow{
			Type:    "PG_CHECKOUT",
			Message: req.Message,
			MerchantURLs: merchantURLs{
				RedirectURL: c.redirectBase + "/payment-status?transactionId=" + req.OrderKey,
			},
		},
	}

	raw, err := c.post(ctx, c.endpoints.Pay, tok, payload)
	if err != nil {
		return CreateOrderResponse{}, err
	}

	var result createOrderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CreateOrderResponse{}, fmt.Errorf("%w: malformed create-order response: %v", ErrRequestFailed, err)
	}
	if result.OrderID == "" || result.RedirectURL == "" {
		return CreateOrderResponse{}, fmt.Errorf("%w: create-order response missing orderId or redirectUrl", ErrRequestFailed)
	}

	return CreateOrderResponse{
		RemoteOrderID: result.OrderID,
		RedirectURL:   result.RedirectURL,
		State:         result.State,
		ExpiresAt:     time.UnixMilli(result.ExpireAt),
		Raw:           raw,
	}, nil
}

// OrderStatusResponse is the gateway's authoritative view of an order.
type OrderStatusResponse struct {
	State         string
	RemoteOrderID string
	Raw           json.RawMessage
}

type orderStatusResult struct {
	State   string `json:"state"`
	OrderID string `json:"orderId"`
}

// OrderStatus fetches the remote state of an order by its order key.
func (c *Client) OrderStatus(ctx context.Context, orderKey string) (OrderStatusResponse, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return OrderStatusResponse{}, err
	}

	url := c.endpoints.Status + "/" + orderKey + "/status?details=true&errorContext=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return OrderStatusResponse{}, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "O-Bearer "+tok)

	raw, err := c.do(req)
	if err != nil {
		return OrderStatusResponse{}, err
	}

	var result orderStatusResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return OrderStatusResponse{}, fmt.Errorf("%w: malformed status response: %v", ErrRequestFailed, err)
	}
	if result.State == "" {
		return OrderStatusResponse{}, fmt.Errorf("%w: status response missing state", ErrRequestFailed)
	}

	return OrderStatusResponse{
		State:         result.State,
		RemoteOrderID: result.OrderID,
		Raw:           raw,
	}, nil
}

func (c *Client) post(ctx context.Context, url, token string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "O-Bearer "+token)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: gateway returned %d: %s", ErrRequestFailed, resp.StatusCode, truncate(raw, 256))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
