package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sendloop/sendloop/internal/store"
)

const shopifyAPIVersion = "2024-07"

// Shopify calls the Shopify Admin REST API with a per-shop access token.
type Shopify struct{}

func NewShopify() *Shopify { return &Shopify{} }

func (s *Shopify) ID() string { return "shopify" }

func (s *Shopify) Actions() map[string]ActionConfig {
	return map[string]ActionConfig{
		"search_products": {
			Title:       "Search products",
			Description: "Search the Shopify store catalog by title. Returns matching products with title, price and availability.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Product title to search for"},
					"limit": map[string]any{"type": "integer", "description": "Max results, default 5"},
				},
				"required": []string{"query"},
			},
			Execute: s.searchProducts,
		},
		"get_order": {
			Title:       "Get order",
			Description: "Fetch one Shopify order by its order name or number, including fulfillment status and line items.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"order_id": map[string]any{"type": "string", "description": "The order name, e.g. #1001, or the numeric id"},
				},
				"required": []string{"order_id"},
			},
			Execute: s.getOrder,
		},
	}
}

type shopifyProduct struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Variants []struct {
		Price             string `json:"price"`
		InventoryQuantity int    `json:"inventory_quantity"`
	} `json:"variants"`
}

type shopifyOrder struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	FinancialStatus   string `json:"financial_status"`
	FulfillmentStatus string `json:"fulfillment_status"`
	TotalPrice        string `json:"total_price"`
	Currency          string `json:"currency"`
	LineItems         []struct {
		Title    string `json:"title"`
		Quantity int    `json:"quantity"`
		Price    string `json:"price"`
	} `json:"line_items"`
}

func (s *Shopify) searchProducts(ctx context.Context, args map[string]any, rec store.IntegrationRecord) (string, error) {
	base, headers, err := s.endpoint(rec)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("title", stringArg(args, "query"))
	q.Set("limit", fmt.Sprint(intArg(args, "limit", 5)))

	var resp struct {
		Products []shopifyProduct `json:"products"`
	}
	if err := doJSON(ctx, http.MethodGet, base+"/products.json?"+q.Encode(), headers, nil, &resp); err != nil {
		return "", fmt.Errorf("shopify product search: %w", err)
	}
	if len(resp.Products) == 0 {
		return "No products matched the search.", nil
	}
	return compactJSON(resp.Products), nil
}

func (s *Shopify) getOrder(ctx context.Context, args map[string]any, rec store.IntegrationRecord) (string, error) {
	base, headers, err := s.endpoint(rec)
	if err != nil {
		return "", err
	}
	orderID := stringArg(args, "order_id")

	// Order "names" (#1001) need a filtered list call; numeric ids can be
	// fetched directly, but the filtered form covers both.
	q := url.Values{}
	q.Set("name", strings.TrimPrefix(orderID, "#"))
	q.Set("status", "any")

	var resp struct {
		Orders []shopifyOrder `json:"orders"`
	}
	if err := doJSON(ctx, http.MethodGet, base+"/orders.json?"+q.Encode(), headers, nil, &resp); err != nil {
		return "", fmt.Errorf("shopify order %s: %w", orderID, err)
	}
	if len(resp.Orders) == 0 {
		return fmt.Sprintf("No order found matching %q.", orderID), nil
	}
	return compactJSON(resp.Orders[0]), nil
}

func (s *Shopify) endpoint(rec store.IntegrationRecord) (string, map[string]string, error) {
	if err := requireCreds(rec.Credentials, "shop_domain", "access_token"); err != nil {
		return "", nil, err
	}
	domain := strings.TrimRight(rec.Credentials["shop_domain"], "/")
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	headers := map[string]string{"X-Shopify-Access-Token": rec.Credentials["access_token"]}
	return domain + "/admin/api/" + shopifyAPIVersion, headers, nil
}

var _ Integration = (*Shopify)(nil)
