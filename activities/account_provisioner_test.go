package activities

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAccountProvisioner_ProvisionSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/accounts" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"account_id": "acct-1"})
	}))
	defer server.Close()

	p := NewAccountProvisioner(ProvisionerConfig{BaseURL: server.URL, Timeout: time.Second})
	result, err := p.Provision(ProvisionRequest{UserID: "u-1", Email: "u@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if result.AccountID != "acct-1" {
		t.Fatalf("unexpected account id: %v", result)
	}
}

func TestAccountProvisioner_ProvisionDownstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "downstream down"})
	}))
	defer server.Close()

	p := NewAccountProvisioner(ProvisionerConfig{BaseURL: server.URL, Timeout: time.Second})
	if _, err := p.Provision(ProvisionRequest{UserID: "u-1"}); err == nil {
		t.Fatal("expected an error for a downstream 502")
	}
}

func TestAccountProvisioner_Deprovision(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodDelete || r.URL.Path != "/accounts/acct-1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p := NewAccountProvisioner(ProvisionerConfig{BaseURL: server.URL, Timeout: time.Second})
	if err := p.Deprovision("acct-1"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected downstream delete to be called")
	}
}
