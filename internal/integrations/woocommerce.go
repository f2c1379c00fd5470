package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sendloop/sendloop/internal/store"
)

// WooCommerce calls the WooCommerce REST API v3 with consumer key/secret
// credentials stored on the user's connection record.
type WooCommerce struct{}

func NewWooCommerce() *WooCommerce { return &WooCommerce{} }

func (w *WooCommerce) ID() string { return "woocommerce" }

func (w *WooCommerce) Actions() map[string]ActionConfig {
	return map[string]ActionConfig{
		"search_products": {
			Title:       "Search products",
			Description: "Search the WooCommerce store catalog by keyword. Returns matching products with name, price and stock status.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search keyword"},
					"limit": map[string]any{"type": "integer", "description": "Max results, default 5"},
				},
				"required": []string{"query"},
			},
			Execute: w.searchProducts,
		},
		"get_order": {
			Title:       "Get order",
			Description: "Fetch one WooCommerce order by its order number, including status, total and line items.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"order_id": map[string]any{"type": "string", "description": "The order number"},
				},
				"required": []string{"order_id"},
			},
			Execute: w.getOrder,
		},
		"list_orders": {
			Title:       "List orders",
			Description: "List recent WooCommerce orders, optionally filtered by status (pending, processing, completed, cancelled).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{"type": "string", "description": "Order status filter"},
					"limit":  map[string]any{"type": "integer", "description": "Max results, default 5"},
				},
			},
			Execute: w.listOrders,
		},
	}
}

type wooProduct struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	StockStatus string `json:"stock_status"`
	Permalink   string `json:"permalink"`
}

type wooOrder struct {
	ID       int64  `json:"id"`
	Status   string `json:"status"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
	Billing  struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"billing"`
	LineItems []struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
		Total    string `json:"total"`
	} `json:"line_items"`
}

func (w *WooCommerce) searchProducts(ctx context.Context, args map[string]any, rec store.IntegrationRecord) (string, error) {
	base, err := w.apiBase(rec)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("search", stringArg(args, "query"))
	q.Set("per_page", fmt.Sprint(intArg(args, "limit", 5)))
	w.sign(q, rec)

	var products []wooProduct
	if err := doJSON(ctx, http.MethodGet, base+"/products?"+q.Encode(), nil, nil, &products); err != nil {
		return "", fmt.Errorf("woocommerce product search: %w", err)
	}
	if len(products) == 0 {
		return "No products matched the search.", nil
	}
	return compactJSON(products), nil
}

func (w *WooCommerce) getOrder(ctx context.Context, args map[string]any, rec store.IntegrationRecord) (string, error) {
	base, err := w.apiBase(rec)
	if err != nil {
		return "", err
	}
	orderID := stringArg(args, "order_id")
	q := url.Values{}
	w.sign(q, rec)

	var order wooOrder
	if err := doJSON(ctx, http.MethodGet, base+"/orders/"+url.PathEscape(orderID)+"?"+q.Encode(), nil, nil, &order); err != nil {
		return "", fmt.Errorf("woocommerce order %s: %w", orderID, err)
	}
	return compactJSON(order), nil
}

func (w *WooCommerce) listOrders(ctx context.Context, args map[string]any, rec store.IntegrationRecord) (string, error) {
	base, err := w.apiBase(rec)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("per_page", fmt.Sprint(intArg(args, "limit", 5)))
	if status := stringArg(args, "status"); status != "" {
		q.Set("status", status)
	}
	w.sign(q, rec)

	var orders []wooOrder
	if err := doJSON(ctx, http.MethodGet, base+"/orders?"+q.Encode(), nil, nil, &orders); err != nil {
		return "", fmt.Errorf("woocommerce orders: %w", err)
	}
	if len(orders) == 0 {
		return "No orders found.", nil
	}
	return compactJSON(orders), nil
}

func (w *WooCommerce) apiBase(rec store.IntegrationRecord) (string, error) {
	if err := requireCreds(rec.Credentials, "store_url", "consumer_key", "consumer_secret"); err != nil {
		return "", err
	}
	return strings.TrimRight(rec.Credentials["store_url"], "/") + "/wp-json/wc/v3", nil
}

// sign appends the key/secret query auth WooCommerce uses over HTTPS.
func (w *WooCommerce) sign(q url.Values, rec store.IntegrationRecord) {
	q.Set("consumer_key", rec.Credentials["consumer_key"])
	q.Set("consumer_secret", rec.Credentials["consumer_secret"])
}

var _ Integration = (*WooCommerce)(nil)
