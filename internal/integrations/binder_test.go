package integrations

import (
	"context"
	"strings"
	"testing"

	"github.com/sendloop/sendloop/internal/agent"
	"github.com/sendloop/sendloop/internal/store"
)

type fakeIntegrationStore struct {
	records []store.IntegrationRecord
}

func (f *fakeIntegrationStore) ListByUser(ctx context.Context, userID string) ([]store.IntegrationRecord, error) {
	var out []store.IntegrationRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeIntegrationStore) Upsert(ctx context.Context, rec *store.IntegrationRecord) error {
	return nil
}

func (f *fakeIntegrationStore) Disconnect(ctx context.Context, userID, integrationID string) error {
	return nil
}

func TestBindToolsVisibility(t *testing.T) {
	conns := &fakeIntegrationStore{records: []store.IntegrationRecord{
		{
			UserID:        "u1",
			IntegrationID: "shopify",
			Active:        true,
			Status:        store.IntegrationConnected,
			Credentials:   map[string]string{"shop_domain": "demo.myshopify.com", "access_token": "tok"},
		},
		{
			UserID:        "u1",
			IntegrationID: "woocommerce",
			Active:        false, // deactivated: must not surface
			Status:        store.IntegrationConnected,
			Credentials:   map[string]string{"store_url": "https://shop.example", "consumer_key": "k", "consumer_secret": "s"},
		},
		{
			UserID:        "u1",
			IntegrationID: "google_calendar",
			Active:        true,
			Status:        store.IntegrationNotConnected, // connect flow never finished
		},
	}}

	binder := NewBinder(DefaultRegistry(), conns)
	tools, err := binder.BindTools(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BindTools: %v", err)
	}

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.Name()] = true
	}
	for _, want := range []string{"shopify_search_products", "shopify_get_order"} {
		if !names[want] {
			t.Errorf("expected tool %s, got %v", want, names)
		}
	}
	for name := range names {
		if strings.HasPrefix(name, "woocommerce_") {
			t.Errorf("inactive integration leaked tool %s", name)
		}
		if strings.HasPrefix(name, "google_calendar_") {
			t.Errorf("unconnected integration leaked tool %s", name)
		}
	}
	if len(tools) != 2 {
		t.Errorf("expected 2 tools, got %d", len(tools))
	}
}

func TestBindToolsEmptyForUnknownUser(t *testing.T) {
	binder := NewBinder(DefaultRegistry(), &fakeIntegrationStore{})
	tools, err := binder.BindTools(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("BindTools: %v", err)
	}
	if len(tools) != 0 {
		t.Errorf("expected no tools, got %d", len(tools))
	}
}

func TestBindToolsSkipsUnregisteredIntegration(t *testing.T) {
	conns := &fakeIntegrationStore{records: []store.IntegrationRecord{
		{UserID: "u1", IntegrationID: "fax_machine", Active: true, Status: store.IntegrationConnected},
	}}
	binder := NewBinder(DefaultRegistry(), conns)
	tools, err := binder.BindTools(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BindTools: %v", err)
	}
	if len(tools) != 0 {
		t.Errorf("expected no tools for unregistered integration, got %d", len(tools))
	}
}

func TestBoundToolHidesCredentials(t *testing.T) {
	secret := "shpat_veryverysecret"
	conns := &fakeIntegrationStore{records: []store.IntegrationRecord{
		{
			UserID:        "u1",
			IntegrationID: "shopify",
			Active:        true,
			Status:        store.IntegrationConnected,
			Credentials:   map[string]string{"shop_domain": "demo.myshopify.com", "access_token": secret},
		},
	}}

	binder := NewBinder(DefaultRegistry(), conns)
	tools, err := binder.BindTools(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BindTools: %v", err)
	}
	for _, tool := range tools {
		surface := tool.Name() + tool.Description() + compactJSON(tool.Parameters())
		if strings.Contains(surface, secret) {
			t.Errorf("tool %s exposes credentials in its schema surface", tool.Name())
		}
	}
}

func TestBoundToolRejectsBadArgs(t *testing.T) {
	conns := &fakeIntegrationStore{records: []store.IntegrationRecord{
		{
			UserID:        "u1",
			IntegrationID: "shopify",
			Active:        true,
			Status:        store.IntegrationConnected,
			Credentials:   map[string]string{"shop_domain": "demo.myshopify.com", "access_token": "tok"},
		},
	}}

	binder := NewBinder(DefaultRegistry(), conns)
	tools, err := binder.BindTools(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BindTools: %v", err)
	}

	var search agent.Tool
	for _, tool := range tools {
		if tool.Name() == "shopify_search_products" {
			search = tool
		}
	}
	if search == nil {
		t.Fatal("shopify_search_products not bound")
	}

	res := search.Execute(context.Background(), map[string]any{})
	if !res.IsError {
		t.Error("expected validation error for missing required argument")
	}
	if !strings.Contains(res.ForLLM, "query") {
		t.Errorf("error should name the missing argument, got %q", res.ForLLM)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewShopify()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(NewShopify()); err == nil {
		t.Error("expected duplicate registration error")
	}
}
