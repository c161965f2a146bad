package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/atmx/nft-marketplace/internal/model"
)

var errNotFound = errors.New("not found")

// Client queries a registry service over HTTP.
//
//	GET /collections/{collection}                              -> CollectionInfo
//	GET /collections/{collection}/tokens/{id}/owner            -> {"owner": "..."}
//	GET /collections/{collection}/tokens/{id}/approval?operator -> {"approved": true}
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a registry client. baseURL is the service root, e.g.
// "http://registry:8090".
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) OwnerOf(ctx context.Context, collection string, token model.TokenID) (string, error) {
	var resp struct {
		Owner string `json:"owner"`
	}
	if err := c.getJSON(ctx, tokenPath(collection, token)+"/owner", &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", fmt.Errorf("%w: %s/%d", ErrUnknownToken, collection, token)
		}
		return "", fmt.Errorf("chain: owner of %s/%d: %w", collection, token, err)
	}
	return resp.Owner, nil
}

func (c *Client) Approved(ctx context.Context, collection string, token model.TokenID, operator string) (bool, error) {
	var resp struct {
		Approved bool `json:"approved"`
	}
	path := tokenPath(collection, token) + "/approval?" + url.Values{"operator": {operator}}.Encode()
	if err := c.getJSON(ctx, path, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return false, fmt.Errorf("%w: %s/%d", ErrUnknownToken, collection, token)
		}
		return false, fmt.Errorf("chain: approval of %s/%d: %w", collection, token, err)
	}
	return resp.Approved, nil
}

func (c *Client) Info(ctx context.Context, collection string) (CollectionInfo, error) {
	var info CollectionInfo
	if err := c.getJSON(ctx, "/collections/"+url.PathEscape(collection), &info); err != nil {
		if errors.Is(err, errNotFound) {
			return CollectionInfo{}, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
		}
		return CollectionInfo{}, fmt.Errorf("chain: collection %s: %w", collection, err)
	}
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func tokenPath(collection string, token model.TokenID) string {
	return "/collections/" + url.PathEscape(collection) + "/tokens/" + strconv.FormatUint(uint64(token), 10)
}
