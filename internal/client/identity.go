package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/blindbox-shop/order-service/internal/domain/auth"
)

// ErrUnauthorized is returned when the identity service rejects a token.
var ErrUnauthorized = errors.New("invalid token")

var _ auth.TokenVerifier = (*IdentityClient)(nil)

// IdentityClient verifies bearer tokens against the identity service.
type IdentityClient struct {
	baseURL string
	http    *http.Client
}

// NewIdentityClient creates an IdentityClient for the given base URL.
func NewIdentityClient(baseURL string, timeout time.Duration) *IdentityClient {
	return &IdentityClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	User struct {
		ID        string `json:"id"`
		Role      string `json:"role"`
		StoreID   string `json:"storeId"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	} `json:"user"`
}

// Verify resolves the caller identity for a bearer token.
func (c *IdentityClient) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, errors.Wrap(err, "marshal verify request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/verify-token", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "verify token")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, ErrUnauthorized
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, errors.Wrap(err, "decode verify response")
	}

	return &auth.Identity{
		ID:        vr.User.ID,
		Role:      auth.Role(vr.User.Role),
		StoreID:   vr.User.StoreID,
		FirstName: vr.User.FirstName,
		LastName:  vr.User.LastName,
		Email:     vr.User.Email,
	}, nil
}
