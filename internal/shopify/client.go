package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"warranty-proxy-service/internal/config"
	"warranty-proxy-service/internal/metrics"
	"warranty-proxy-service/internal/model"
)

const (
	accessTokenHeader = "X-Shopify-Access-Token"
	customerGIDPrefix = "gid://shopify/Customer/"
	maxResponseBytes  = 4 << 20
)

var ErrInvalidCustomerID = errors.New("customerId must be a numeric Shopify customer id or customer GID")

// RemoteError is a non-2xx answer from the Admin API. Payload holds the
// response body when it was valid JSON.
type RemoteError struct {
	Op         string
	StatusCode int
	Payload    json.RawMessage
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("shopify %s: status %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

// Client talks to the Shopify Admin REST API for one store.
type Client struct {
	baseURL    string
	apiVersion string
	token      string
	http       *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

// WithBaseURL overrides https://<store domain>, e.g. for an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(cfg *config.Config, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    "https://" + cfg.ShopifyStoreDomain,
		apiVersion: cfg.ShopifyAPIVersion,
		token:      cfg.ShopifyAccessToken,
		http: &http.Client{
			Timeout: cfg.ShopifyTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseCustomerID accepts "6543210" or "gid://shopify/Customer/6543210" and
// returns the numeric form. Leading zeros are rejected since the id is sent
// to Shopify as a JSON number.
func ParseCustomerID(raw string) (string, error) {
	id := strings.TrimPrefix(strings.TrimSpace(raw), customerGIDPrefix)
	if id == "" || id[0] == '0' {
		return "", ErrInvalidCustomerID
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", ErrInvalidCustomerID
		}
	}
	return id, nil
}

type metafieldsEnvelope struct {
	Metafields []model.Metafield `json:"metafields"`
}

type metafieldEnvelope struct {
	Metafield model.Metafield `json:"metafield"`
}

// Fetch returns the customer's warranty metafield, or nil if it has none.
func (c *Client) Fetch(ctx context.Context, customerID string) (*model.Metafield, error) {
	q := url.Values{}
	q.Set("namespace", model.WarrantyNamespace)
	q.Set("key", model.WarrantyKey)
	path := fmt.Sprintf("/customers/%s/metafields.json?%s", url.PathEscape(customerID), q.Encode())

	var out metafieldsEnvelope
	if err := c.do(ctx, "fetch_metafields", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	for i := range out.Metafields {
		if out.Metafields[i].IsWarrantySlot() {
			mf := out.Metafields[i]
			return &mf, nil
		}
	}
	return nil, nil
}

// Write stores value in the warranty slot. With existingID > 0 the metafield
// is updated in place, otherwise it is created on the customer.
func (c *Client) Write(ctx context.Context, customerID, value string, existingID int64) (*model.Metafield, error) {
	payload := model.Metafield{
		ID:            existingID,
		Namespace:     model.WarrantyNamespace,
		Key:           model.WarrantyKey,
		Type:          model.WarrantyType,
		Value:         value,
		OwnerID:       json.Number(customerID),
		OwnerResource: model.OwnerCustomer,
	}

	op, method, path := "create_metafield", http.MethodPost, "/metafields.json"
	if existingID > 0 {
		op, method, path = "update_metafield", http.MethodPut, fmt.Sprintf("/metafields/%d.json", existingID)
	}

	var out metafieldEnvelope
	if err := c.do(ctx, op, method, path, metafieldEnvelope{Metafield: payload}, &out); err != nil {
		return nil, err
	}
	return &out.Metafield, nil
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/admin/api/%s%s", c.baseURL, c.apiVersion, path)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("shopify %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("shopify %s: %w", op, err)
	}
	req.Header.Set(accessTokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		metrics.ShopifyRequestDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		c.logger.Warn("shopify request failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("shopify %s: %w", op, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	elapsed := time.Since(start)
	metrics.ShopifyRequestDuration.WithLabelValues(op, strconv.Itoa(res.StatusCode)).Observe(elapsed.Seconds())
	if err != nil {
		return fmt.Errorf("shopify %s: read response: %w", op, err)
	}

	c.logger.Debug("shopify request",
		zap.String("op", op),
		zap.String("method", method),
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", elapsed),
	)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		remote := &RemoteError{Op: op, StatusCode: res.StatusCode, Body: string(raw)}
		if json.Valid(raw) {
			remote.Payload = raw
		}
		return remote
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("shopify %s: decode response: %w", op, err)
		}
	}
	return nil
}
