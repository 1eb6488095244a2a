// Package client implements the HTTP clients for the external collaborator
// services (catalog, store, identity). Each client is stateless: every call
// is one request/response against the collaborator's API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/blindbox-shop/order-service/internal/domain/catalog"
)

var _ catalog.Client = (*CatalogClient)(nil)

// CatalogClient talks to the product catalog service. The catalog's
// decrease-stock endpoint performs the atomic check-and-decrement; this
// client only maps its outcomes onto domain errors.
type CatalogClient struct {
	baseURL string
	http    *http.Client
}

// NewCatalogClient creates a CatalogClient for the given base URL
// (e.g. http://product-service:2004). Timeout bounds every call.
func NewCatalogClient(baseURL string, timeout time.Duration) *CatalogClient {
	return &CatalogClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Wire types for the catalog API.

type productEnvelope struct {
	Product wireProduct `json:"product"`
}

type wireProduct struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Thumbnail string          `json:"thumbnail"`
	IsActive  bool            `json:"isActive"`
	Variants  []wireVariant   `json:"variants"`
}

type wireVariant struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Color string          `json:"color,omitempty"`
	Size  string          `json:"size,omitempty"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type stockRequest struct {
	Quantity  int    `json:"quantity"`
	VariantID string `json:"variantId,omitempty"`
}

type catalogError struct {
	Message   string `json:"message"`
	Available int    `json:"available"`
}

// FetchProduct returns the catalog's current snapshot of the product.
func (c *CatalogClient) FetchProduct(ctx context.Context, productID string) (*catalog.ProductSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.productURL(productID, ""), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(catalog.ErrUnavailable, "fetch product %s: %v", productID, err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &catalog.NotFoundError{ProductID: productID}
	default:
		return nil, errors.Wrapf(catalog.ErrUnavailable, "fetch product %s: status %d", productID, resp.StatusCode)
	}

	var env productEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Wrapf(err, "decode product %s", productID)
	}

	snap := &catalog.ProductSnapshot{
		ID:       env.Product.ID,
		Name:     env.Product.Name,
		Price:    env.Product.Price,
		Image:    env.Product.Thumbnail,
		Stock:    env.Product.Stock,
		IsActive: env.Product.IsActive,
		Variants: make([]catalog.Variant, 0, len(env.Product.Variants)),
	}
	for _, v := range env.Product.Variants {
		snap.Variants = append(snap.Variants, catalog.Variant{
			ID:    v.ID,
			Name:  v.Name,
			Color: v.Color,
			Size:  v.Size,
			Price: v.Price,
			Stock: v.Stock,
		})
	}
	return snap, nil
}

// DecreaseStock asks the catalog for a conditional decrement.
func (c *CatalogClient) DecreaseStock(ctx context.Context, productID, variantID string, quantity int) error {
	return c.adjustStock(ctx, productID, variantID, quantity, "decrease-stock")
}

// IncreaseStock restores previously decremented stock.
func (c *CatalogClient) IncreaseStock(ctx context.Context, productID, variantID string, quantity int) error {
	return c.adjustStock(ctx, productID, variantID, quantity, "increase-stock")
}

func (c *CatalogClient) adjustStock(ctx context.Context, productID, variantID string, quantity int, op string) error {
	body, err := json.Marshal(stockRequest{Quantity: quantity, VariantID: variantID})
	if err != nil {
		return errors.Wrap(err, "marshal stock request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.productURL(productID, op), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(catalog.ErrUnavailable, "%s product %s: %v", op, productID, err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return &catalog.NotFoundError{ProductID: productID, VariantID: variantID}
	case http.StatusBadRequest, http.StatusConflict:
		var ce catalogError
		_ = json.NewDecoder(resp.Body).Decode(&ce)
		return &catalog.InsufficientStockError{
			ProductID: productID,
			VariantID: variantID,
			Requested: quantity,
			Available: ce.Available,
		}
	default:
		return errors.Wrapf(catalog.ErrUnavailable, "%s product %s: status %d", op, productID, resp.StatusCode)
	}
}

func (c *CatalogClient) productURL(productID, op string) string {
	u := fmt.Sprintf("%s/api/products/%s", c.baseURL, url.PathEscape(productID))
	if op != "" {
		u += "/" + op
	}
	return u
}

// drainAndClose discards any unread body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
