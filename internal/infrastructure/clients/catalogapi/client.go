package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medserve/discovery/internal/domain/entities"
	"github.com/medserve/discovery/internal/domain/providers"
	"github.com/medserve/discovery/internal/infrastructure/observability"
	apperrors "github.com/medserve/discovery/pkg/errors"
	"github.com/medserve/discovery/pkg/retry"
)

// HTTPClient talks to the catalog backend over REST. It implements
// providers.CatalogProvider.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
}

// NewClient creates a catalog API client for the given base URL.
func NewClient(baseURL string, metrics *observability.Metrics) *HTTPClient {
	trimmed := strings.TrimRight(baseURL, "/")
	return &HTTPClient{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		metrics: metrics,
	}
}

type submitRatingRequest struct {
	Score        float64               `json:"score"`
	ProviderType entities.ProviderType `json:"provider_type"`
}

// FetchServicePage returns one page of catalog records. Transient failures are
// retried with backoff; an exhausted retry surfaces as an EXTERNAL error so the
// caller can keep its last-known-good state.
func (c *HTTPClient) FetchServicePage(ctx context.Context, pageToken string, pageSize int) (*providers.ServicePage, error) {
	parsed, err := url.Parse(c.baseURL + "/services")
	if err != nil {
		return nil, apperrors.NewInternalError("invalid catalog URL", err)
	}

	query := parsed.Query()
	if pageToken != "" {
		query.Set("page_token", pageToken)
	}
	if pageSize > 0 {
		query.Set("page_size", fmt.Sprintf("%d", pageSize))
	}
	parsed.RawQuery = query.Encode()

	start := time.Now()
	out := &providers.ServicePage{}
	err = retry.Do(ctx, c.retryConfig(ctx, "fetch service page"), func() error {
		return c.doJSON(ctx, http.MethodGet, parsed.String(), nil, out)
	})
	observability.RecordCatalogFetch(ctx, c.metrics, "fetch_page", time.Since(start))
	if err != nil {
		return nil, apperrors.NewExternalError("catalog page fetch failed", err)
	}
	return out, nil
}

// FetchServiceByID refreshes a single service record.
func (c *HTTPClient) FetchServiceByID(ctx context.Context, id string, providerTypeHint entities.ProviderType) (*entities.ServiceRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("service id is required")
	}

	endpoint := fmt.Sprintf("%s/services/%s", c.baseURL, url.PathEscape(id))
	if providerTypeHint != "" {
		endpoint = fmt.Sprintf("%s?provider_type=%s", endpoint, url.QueryEscape(string(providerTypeHint)))
	}

	start := time.Now()
	out := &entities.ServiceRecord{}
	err := retry.Do(ctx, c.retryConfig(ctx, "fetch service"), func() error {
		return c.doJSON(ctx, http.MethodGet, endpoint, nil, out)
	})
	observability.RecordCatalogFetch(ctx, c.metrics, "fetch_by_id", time.Since(start))
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, err
		}
		return nil, apperrors.NewExternalError("catalog record fetch failed", err)
	}
	return out, nil
}

// SubmitRating writes a rating and returns the authoritative post-write
// aggregate. Not retried: the backend write is not known to be idempotent.
func (c *HTTPClient) SubmitRating(ctx context.Context, serviceID string, score float64, providerTypeHint entities.ProviderType) (*entities.RatingUpdateEvent, error) {
	if strings.TrimSpace(serviceID) == "" {
		return nil, apperrors.NewValidationError("service id is required")
	}
	if score < 0 || score > 5 {
		return nil, apperrors.NewValidationError("score must be between 0 and 5")
	}

	endpoint := fmt.Sprintf("%s/services/%s/ratings", c.baseURL, url.PathEscape(serviceID))
	body := submitRatingRequest{Score: score, ProviderType: providerTypeHint}

	out := &entities.RatingUpdateEvent{}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, out); err != nil {
		return nil, apperrors.NewExternalError("rating submission failed", err)
	}
	return out, nil
}

func (c *HTTPClient) retryConfig(ctx context.Context, operation string) retry.Config {
	cfg := retry.FetchConfig()
	cfg.OnRetry = func(attempt int, err error, nextDelay time.Duration) {
		observability.LoggerFromContext(ctx).Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("next_delay", nextDelay).
			Str("operation", operation).
			Msg("catalog fetch retrying")
	}
	return cfg
}

func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NewNotFoundError(fmt.Sprintf("catalog returned 404 for %s", endpoint))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
