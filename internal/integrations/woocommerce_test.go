package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sendloop/sendloop/internal/store"
)

func wooRecord(storeURL string) store.IntegrationRecord {
	return store.IntegrationRecord{
		UserID:        "u1",
		IntegrationID: "woocommerce",
		Active:        true,
		Status:        store.IntegrationConnected,
		Credentials: map[string]string{
			"store_url":       storeURL,
			"consumer_key":    "ck_test",
			"consumer_secret": "cs_test",
		},
	}
}

func TestWooCommerceSearchProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/wp-json/wc/v3/products") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("consumer_key") != "ck_test" {
			t.Error("request not signed with consumer key")
		}
		if r.URL.Query().Get("search") != "mug" {
			t.Errorf("search = %q, want mug", r.URL.Query().Get("search"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":11,"name":"Coffee Mug","price":"12.50","stock_status":"instock"}]`))
	}))
	defer server.Close()

	wc := NewWooCommerce()
	out, err := wc.searchProducts(context.Background(), map[string]any{"query": "mug"}, wooRecord(server.URL))
	if err != nil {
		t.Fatalf("searchProducts: %v", err)
	}
	if !strings.Contains(out, "Coffee Mug") {
		t.Errorf("output missing product name: %s", out)
	}
}

func TestWooCommerceGetOrderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"woocommerce_rest_shop_order_invalid_id"}`, http.StatusNotFound)
	}))
	defer server.Close()

	wc := NewWooCommerce()
	_, err := wc.getOrder(context.Background(), map[string]any{"order_id": "999"}, wooRecord(server.URL))
	if err == nil {
		t.Fatal("expected error for missing order")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should carry the status code, got %v", err)
	}
}

func TestWooCommerceMissingCredentials(t *testing.T) {
	wc := NewWooCommerce()
	rec := store.IntegrationRecord{Credentials: map[string]string{"store_url": "https://shop.example"}}
	_, err := wc.searchProducts(context.Background(), map[string]any{"query": "x"}, rec)
	if err == nil {
		t.Fatal("expected missing credential error")
	}
	if !strings.Contains(err.Error(), "consumer_key") {
		t.Errorf("error should name the missing credential, got %v", err)
	}
}
