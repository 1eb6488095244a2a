package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"

	"github.com/blindbox-shop/order-service/internal/domain/store"
)

var _ store.Client = (*StoreClient)(nil)

// StoreClient talks to the store service for seller lookups.
type StoreClient struct {
	baseURL string
	http    *http.Client
}

// NewStoreClient creates a StoreClient for the given base URL.
func NewStoreClient(baseURL string, timeout time.Duration) *StoreClient {
	return &StoreClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type storeEnvelope struct {
	Store struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"store"`
}

// FetchStore returns the store snapshot or store.ErrNotFound.
func (c *StoreClient) FetchStore(ctx context.Context, storeID string) (*store.Snapshot, error) {
	u := fmt.Sprintf("%s/api/stores/%s", c.baseURL, url.PathEscape(storeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(store.ErrUnavailable, "fetch store %s: %v", storeID, err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, store.ErrNotFound
	default:
		return nil, errors.Wrapf(store.ErrUnavailable, "fetch store %s: status %d", storeID, resp.StatusCode)
	}

	var env storeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Wrapf(err, "decode store %s", storeID)
	}

	return &store.Snapshot{ID: env.Store.ID, Name: env.Store.Name}, nil
}
