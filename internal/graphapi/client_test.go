package graphapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sendloop/sendloop/internal/dispatch"
	"github.com/sendloop/sendloop/internal/store"
)

func testCreds() dispatch.AccountCreds {
	return dispatch.AccountCreds{
		AccountID:     "acc1",
		PhoneNumberID: "10001",
		BusinessID:    "20002",
		AccessToken:   "token",
	}
}

func TestSendParsesMessageID(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v20.0/10001/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.ABC"}]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	id, err := c.Send(context.Background(), testCreds(), dispatch.Payload{To: "111", Kind: store.KindText, Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "wamid.ABC" {
		t.Errorf("id = %q, want wamid.ABC", id)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestSendRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.RETRY"}]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	id, err := c.Send(context.Background(), testCreds(), dispatch.Payload{To: "111", Kind: store.KindText, Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "wamid.RETRY" {
		t.Errorf("id = %q, want wamid.RETRY", id)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestSendDoesNotRetryBusinessRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid recipient","type":"OAuthException","code":131026}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Send(context.Background(), testCreds(), dispatch.Payload{To: "111", Kind: store.KindText, Text: "hi"})
	if err == nil {
		t.Fatal("Send() succeeded, want business error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestGetTemplateByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v20.0/20002/message_templates" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("name") != "order_shipped" {
			t.Errorf("name param = %s", r.URL.Query().Get("name"))
		}
		w.Write([]byte(`{"data":[
			{"name":"other","components":[]},
			{"name":"order_shipped","status":"APPROVED","components":[
				{"type":"HEADER","text":"Order update"},
				{"type":"BODY","text":"Hi {{1}}, your order {{2}} shipped"},
				{"type":"FOOTER","text":"Thanks"}
			]}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	def, err := c.GetTemplateByName(context.Background(), testCreds(), "order_shipped")
	if err != nil {
		t.Fatalf("GetTemplateByName() error = %v", err)
	}
	if def.HeaderText != "Order update" {
		t.Errorf("header = %q", def.HeaderText)
	}
	if def.BodyText != "Hi {{1}}, your order {{2}} shipped" {
		t.Errorf("body = %q", def.BodyText)
	}
	if def.FooterText != "Thanks" {
		t.Errorf("footer = %q", def.FooterText)
	}
}

func TestGetTemplateByNameMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	if _, err := c.GetTemplateByName(context.Background(), testCreds(), "nope"); err == nil {
		t.Error("GetTemplateByName() succeeded for missing template, want error")
	}
}
