package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"datalake-export-scheduler/internal/models"
)

// catalogStub is an httptest-backed catalog API with a fixed token and a
// canned page sequence for entity search.
type catalogStub struct {
	mu sync.Mutex

	tokenCalls  atomic.Int64
	expiresIn   int
	searchCalls []map[string]any
	pages       []searchPage
	blueprint   models.Blueprint
}

type searchPage struct {
	Entities []models.Entity `json:"entities"`
	Next     string          `json:"next,omitempty"`
}

func (s *catalogStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/access_token", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "test-client", creds["clientId"])
		assert.Equal(t, "test-secret", creds["clientSecret"])

		n := s.tokenCalls.Add(1)
		expiresIn := s.expiresIn
		if expiresIn == 0 {
			expiresIn = 3600
		}
		writeJSON(w, map[string]any{
			"accessToken": tokenForCall(n),
			"expiresIn":   expiresIn,
		})
	})

	mux.HandleFunc("GET /blueprints/{identifier}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+tokenForCall(s.tokenCalls.Load()), r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"blueprint": s.blueprint})
	})

	mux.HandleFunc("POST /blueprints/{identifier}/entities/search", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		s.mu.Lock()
		s.searchCalls = append(s.searchCalls, payload)
		page := searchPage{}
		if len(s.pages) > 0 {
			page = s.pages[0]
			s.pages = s.pages[1:]
		}
		s.mu.Unlock()

		writeJSON(w, page)
	})

	return mux
}

func (s *catalogStub) calls() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any{}, s.searchCalls...)
}

func tokenForCall(n int64) string {
	return "token-" + string(rune('0'+n))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, stub *catalogStub) *CatalogClient {
	t.Helper()
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)
	return NewCatalogClient("test-client", "test-secret", server.URL, zap.NewNop().Sugar())
}

func TestGetBlueprint(t *testing.T) {
	t.Parallel()

	stub := &catalogStub{
		blueprint: models.Blueprint{
			Identifier: "service",
			Schema: models.BlueprintSchema{
				Properties: map[string]models.PropertySpec{
					"url": {Type: "string", Format: "url"},
				},
			},
		},
	}
	client := newTestClient(t, stub)

	blueprint, err := client.GetBlueprint(context.Background(), "service")
	require.NoError(t, err)

	assert.Equal(t, "service", blueprint.Identifier)
	assert.Equal(t, "url", blueprint.Schema.Properties["url"].Format)
	assert.Equal(t, int64(1), stub.tokenCalls.Load())
}

func TestTokenIsReused(t *testing.T) {
	t.Parallel()

	stub := &catalogStub{blueprint: models.Blueprint{Identifier: "service"}}
	client := newTestClient(t, stub)

	for i := 0; i < 3; i++ {
		_, err := client.GetBlueprint(context.Background(), "service")
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), stub.tokenCalls.Load(), "unexpired token must be reused")
}

func TestTokenRefreshIsSingleFlight(t *testing.T) {
	t.Parallel()

	stub := &catalogStub{blueprint: models.Blueprint{Identifier: "service"}}
	client := newTestClient(t, stub)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.token(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), stub.tokenCalls.Load(), "concurrent callers must share one refresh")
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	t.Parallel()

	stub := &catalogStub{blueprint: models.Blueprint{Identifier: "service"}, expiresIn: -1}
	client := newTestClient(t, stub)

	_, err := client.GetBlueprint(context.Background(), "service")
	require.NoError(t, err)
	_, err = client.GetBlueprint(context.Background(), "service")
	require.NoError(t, err)

	assert.Equal(t, int64(2), stub.tokenCalls.Load())
}

func TestSearchEntitiesFollowsCursor(t *testing.T) {
	t.Parallel()

	stub := &catalogStub{
		pages: []searchPage{
			{Entities: []models.Entity{{Identifier: "e1"}, {Identifier: "e2"}}, Next: "cursor-1"},
			{Entities: []models.Entity{{Identifier: "e3"}}},
		},
	}
	client := newTestClient(t, stub)

	pages, errCh := client.SearchEntities(context.Background(), "service", models.SearchQuery{}, nil, nil)

	var got []string
	for page := range pages {
		for _, e := range page {
			got = append(got, e.Identifier)
		}
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"e1", "e2", "e3"}, got)

	calls := stub.calls()
	require.Len(t, calls, 2)

	first := calls[0]["query"].(map[string]any)
	assert.Equal(t, "and", first["combinator"])
	assert.NotContains(t, first, "from")

	second := calls[1]["query"].(map[string]any)
	assert.Equal(t, "cursor-1", second["from"], "continuation cursor must be sent back")
}

func TestSearchEntitiesIncludeExclude(t *testing.T) {
	t.Parallel()

	stub := &catalogStub{pages: []searchPage{{Entities: []models.Entity{{Identifier: "e1"}}}}}
	client := newTestClient(t, stub)

	pages, errCh := client.SearchEntities(context.Background(), "service",
		models.SearchQuery{
			Combinator: "or",
			Rules:      []map[string]any{{"property": "$identifier", "operator": "=", "value": "e1"}},
		},
		[]string{"identifier", "title"},
		[]string{"team"},
	)
	for range pages {
	}
	require.NoError(t, <-errCh)

	calls := stub.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"identifier", "title"}, calls[0]["include"])
	assert.Equal(t, []any{"team"}, calls[0]["exclude"])

	query := calls[0]["query"].(map[string]any)
	assert.Equal(t, "or", query["combinator"])
	require.Len(t, query["rules"], 1)
}

func TestSearchEntitiesSurfacesHTTPError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/access_token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"accessToken": "t", "expiresIn": 3600})
	})
	mux.HandleFunc("POST /blueprints/{identifier}/entities/search", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewCatalogClient("test-client", "test-secret", server.URL, zap.NewNop().Sugar())

	pages, errCh := client.SearchEntities(context.Background(), "service", models.SearchQuery{}, nil, nil)
	for range pages {
	}

	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
}

func TestTokenFetchFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := NewCatalogClient("test-client", "bad-secret", server.URL, zap.NewNop().Sugar())

	_, err := client.GetBlueprint(context.Background(), "service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 401")
}
