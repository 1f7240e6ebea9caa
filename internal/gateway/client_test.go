package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return s.token, s.err
}

func TestClient_CreateOrder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "O-Bearer tok-1" {
			t.Errorf("unexpected authorization header %q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["merchantOrderId"] != "ORD1" {
			t.Errorf("unexpected merchantOrderId %v", payload["merchantOrderId"])
		}
		if payload["amount"] != float64(9900) {
			t.Errorf("unexpected amount %v", payload["amount"])
		}
		if payload["expireAfter"] != float64(1800) {
			t.Errorf("unexpected expireAfter %v", payload["expireAfter"])
		}
		flow, _ := payload["paymentFlow"].(map[string]any)
		if flow["type"] != "PG_CHECKOUT" {
			t.Errorf("unexpected flow type %v", flow["type"])
		}

		w.Write([]byte(`{"orderId":"R1","redirectUrl":"https://pay/R1","state":"PENDING","expireAt":1750000000000}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		Endpoints:       Endpoints{Pay: srv.URL},
		RedirectBaseURL: "https://example.org",
	}, staticTokens{token: "tok-1"})

	resp, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		OrderKey:    "ORD1",
		AmountMinor: 9900,
		ExpireAfter: 30 * time.Minute,
		Meta:        MetaInfo{UDF1: "APP1"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if resp.RemoteOrderID != "R1" {
		t.Fatalf("unexpected remote order id %q", resp.RemoteOrderID)
	}
	if resp.RedirectURL != "https://pay/R1" {
		t.Fatalf("unexpected redirect url %q", resp.RedirectURL)
	}
	if len(resp.Raw) == 0 {
		t.Fatalf("expected raw snapshot to be retained")
	}
}

func TestClient_CreateOrder_MissingFields(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"PENDING"}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{Endpoints: Endpoints{Pay: srv.URL}}, staticTokens{token: "tok"})
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{OrderKey: "ORD1", AmountMinor: 100})
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
}

func TestClient_CreateOrder_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"code":"UPSTREAM_DOWN"}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{Endpoints: Endpoints{Pay: srv.URL}}, staticTokens{token: "tok"})
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{OrderKey: "ORD1", AmountMinor: 100})
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
}

func TestClient_CreateOrder_CredentialFailure(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{Endpoints: Endpoints{Pay: "http://unused"}}, staticTokens{err: ErrCredential})
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{OrderKey: "ORD1", AmountMinor: 100})
	if !errors.Is(err, ErrCredential) {
		t.Fatalf("expected ErrCredential, got %v", err)
	}
}

func TestClient_OrderStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ORD1/status" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("details") != "true" {
			t.Errorf("expected details=true, got %q", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "O-Bearer tok-1" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Write([]byte(`{"state":"COMPLETED","orderId":"R1","amount":9900}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{Endpoints: Endpoints{Status: srv.URL}}, staticTokens{token: "tok-1"})
	resp, err := client.OrderStatus(context.Background(), "ORD1")
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if resp.State != "COMPLETED" {
		t.Fatalf("unexpected state %q", resp.State)
	}
	if resp.RemoteOrderID != "R1" {
		t.Fatalf("unexpected remote order id %q", resp.RemoteOrderID)
	}
}

func TestClient_OrderStatus_MissingState(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{Endpoints: Endpoints{Status: srv.URL}}, staticTokens{token: "tok"})
	if _, err := client.OrderStatus(context.Background(), "ORD1"); !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
}

func TestEndpointsFor(t *testing.T) {
	t.Parallel()

	if _, err := EndpointsFor("staging"); err == nil {
		t.Fatalf("expected error for unknown environment")
	}
	eps, err := EndpointsFor(EnvSandbox)
	if err != nil {
		t.Fatalf("sandbox endpoints: %v", err)
	}
	if eps.Token == "" || eps.Pay == "" || eps.Status == "" {
		t.Fatalf("incomplete sandbox endpoints: %+v", eps)
	}
}
