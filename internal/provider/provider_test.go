package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoRequiresCredential(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPOptions{Name: "test", BaseURL: srv.URL, AuthHeader: "x-apikey"})
	err := c.GetJSON(context.Background(), "/files/abc", nil, nil)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if called {
		t.Fatal("no request may be sent without a credential")
	}
}

func TestDoSendsAuthHeaderAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-OTX-API-KEY") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":3}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPOptions{Name: "otx", BaseURL: srv.URL + "/", AuthHeader: "X-OTX-API-KEY", Credential: NewCredential(" secret ")})
	var out struct {
		Count int `json:"count"`
	}
	if err := c.GetJSON(context.Background(), "/pulses/subscribed", nil, &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Count != 3 {
		t.Fatalf("expected count 3, got %d", out.Count)
	}
}

func TestDoReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"NotFoundError"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPOptions{Name: "virustotal", BaseURL: srv.URL, AuthHeader: "x-apikey", Credential: NewCredential("k")})
	err := c.GetJSON(context.Background(), "/files/abc", nil, &struct{}{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Provider != "virustotal" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestCredentialSet(t *testing.T) {
	c := NewCredential("")
	if c.Present() {
		t.Fatal("empty credential must not be present")
	}
	c.Set("  key ")
	if c.Get() != "key" {
		t.Fatalf("expected trimmed key, got %q", c.Get())
	}
}
