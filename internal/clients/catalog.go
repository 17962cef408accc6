package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"datalake-export-scheduler/internal/models"
)

// CatalogClient talks to the catalog REST API: token-based auth, blueprint
// documents and cursor-paginated entity search. The access token is
// refreshed lazily; concurrent callers that observe an expired token share
// one in-flight refresh.
type CatalogClient struct {
	clientID     string
	clientSecret string
	apiURL       string
	httpClient   *http.Client

	mu          sync.RWMutex
	accessToken string
	tokenExpiry time.Time
	refresh     singleflight.Group

	log *zap.SugaredLogger
}

func NewCatalogClient(clientID, clientSecret, apiURL string, log *zap.SugaredLogger) *CatalogClient {
	return &CatalogClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		apiURL:       apiURL,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		log:          log,
	}
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// token returns a valid access token, refreshing it when expired. The
// refresh is deduplicated so N concurrent expired callers trigger one call.
func (c *CatalogClient) token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, expiry := c.accessToken, c.tokenExpiry
	c.mu.RUnlock()

	if token != "" && time.Now().Before(expiry) {
		return token, nil
	}

	result, err, _ := c.refresh.Do("token", func() (any, error) {
		c.log.Info("Refreshing access token...")

		body, err := json.Marshal(map[string]string{
			"clientId":     c.clientID,
			"clientSecret": c.clientSecret,
		})
		if err != nil {
			return nil, err
		}

		var resp tokenResponse
		if err := c.doJSON(ctx, http.MethodPost, c.apiURL+"/auth/access_token", "", body, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch access token: %w", err)
		}

		c.mu.Lock()
		c.accessToken = resp.AccessToken
		c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		c.mu.Unlock()

		c.log.Info("New token received")
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

type blueprintEnvelope struct {
	Blueprint models.Blueprint `json:"blueprint"`
}

// GetBlueprint fetches one blueprint document.
func (c *CatalogClient) GetBlueprint(ctx context.Context, identifier string) (*models.Blueprint, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var envelope blueprintEnvelope
	url := fmt.Sprintf("%s/blueprints/%s", c.apiURL, identifier)
	if err := c.doJSON(ctx, http.MethodGet, url, token, nil, &envelope); err != nil {
		return nil, fmt.Errorf("failed to fetch blueprint %s: %w", identifier, err)
	}
	return &envelope.Blueprint, nil
}

type searchResponse struct {
	Entities []models.Entity `json:"entities"`
	Next     string          `json:"next"`
}

// SearchEntities streams entity pages for a blueprint. Pagination follows
// the response's continuation cursor; the stream ends when no cursor is
// returned. The error channel carries at most one terminal error after the
// page channel closes.
func (c *CatalogClient) SearchEntities(ctx context.Context, blueprint string, query models.SearchQuery, include, exclude []string) (<-chan []models.Entity, <-chan error) {
	pages := make(chan []models.Entity)
	errCh := make(chan error, 1)

	go func() {
		defer close(pages)
		defer close(errCh)

		url := fmt.Sprintf("%s/blueprints/%s/entities/search", c.apiURL, blueprint)
		cursor := ""

		for {
			token, err := c.token(ctx)
			if err != nil {
				errCh <- err
				return
			}

			payload := map[string]any{"query": queryPayload(query, cursor)}
			if len(include) > 0 {
				payload["include"] = include
			}
			if len(exclude) > 0 {
				payload["exclude"] = exclude
			}
			body, err := json.Marshal(payload)
			if err != nil {
				errCh <- err
				return
			}

			var resp searchResponse
			if err := c.doJSON(ctx, http.MethodPost, url, token, body, &resp); err != nil {
				errCh <- fmt.Errorf("entity search for %s failed: %w", blueprint, err)
				return
			}

			select {
			case pages <- resp.Entities:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}

			if resp.Next == "" {
				return
			}
			cursor = resp.Next
		}
	}()

	return pages, errCh
}

func queryPayload(query models.SearchQuery, cursor string) map[string]any {
	combinator := query.Combinator
	if combinator == "" {
		combinator = "and"
	}
	rules := query.Rules
	if rules == nil {
		rules = []map[string]any{}
	}

	payload := map[string]any{
		"combinator": combinator,
		"rules":      rules,
	}
	if cursor != "" {
		payload["from"] = cursor
	}
	return payload
}

func (c *CatalogClient) doJSON(ctx context.Context, method, url, token string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
