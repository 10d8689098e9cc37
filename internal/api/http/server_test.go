package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tokentable/internal/config"
	"tokentable/internal/domain"
	"tokentable/internal/logger"
	"tokentable/internal/metrics"
	"tokentable/internal/service"
	"tokentable/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogue []domain.Token

func (c catalogue) Load(context.Context) ([]domain.Token, error) { return c, nil }

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		TraceID string `json:"trace_id"`
	} `json:"error"`
}

func fixture() []domain.Token {
	return []domain.Token{
		{ID: "token-new-pairs-0", Name: "PepeAI", Symbol: "PEPE", Chain: domain.ChainSOL, Category: domain.CategoryNewPairs, Price: 0.5, MarketCap: 1_500_000, Verified: true},
		{ID: "token-new-pairs-1", Name: "DogeX", Symbol: "DOGE", Chain: domain.ChainETH, Category: domain.CategoryNewPairs, Price: 2, MarketCap: 10_000, Trending: true},
		{ID: "token-migrated-0", Name: "GameFi", Symbol: "GAME", Chain: domain.ChainBSC, Category: domain.CategoryMigrated, Price: 1, MarketCap: 500_000},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *service.TableService) {
	t.Helper()

	cfg := config.Default()
	cfg.Metrics.Enabled = true
	cfg.API.HTTP.Gzip.Enabled = true
	cfg.API.HTTP.CORS.Enabled = true
	cfg.API.Stream.Heartbeat = time.Hour

	m := metrics.New()
	svc, err := service.NewTableService(logger.Nop(), table.NewStore(logger.Nop()), catalogue(fixture()), service.WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, svc.LoadInitial(context.Background()))

	srv, err := NewServer(&ServerDeps{Logger: logger.Nop(), Cfg: cfg, Table: svc, Metrics: m})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		svc.Close()
	})
	return ts, svc
}

func do(t *testing.T, method, url, body string) (*http.Response, envelope) {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

type tokensData struct {
	Count  int `json:"count"`
	Tokens []struct {
		ID      string `json:"id"`
		Display struct {
			Price     string `json:"price"`
			MarketCap string `json:"marketCap"`
		} `json:"display"`
	} `json:"tokens"`
}

func tokenIDs(d tokensData) []string {
	out := make([]string, 0, len(d.Tokens))
	for _, t := range d.Tokens {
		out = append(out, t.ID)
	}
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, env := do(t, http.MethodGet, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", env.Status)

	resp, _ = do(t, http.MethodGet, ts.URL+"/readiness", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTokens_ListAndCategory(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, env := do(t, http.MethodGet, ts.URL+"/api/tokens", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Table-Version"))

	var all tokensData
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Equal(t, 3, all.Count)
	assert.Equal(t, "$0.500000", all.Tokens[0].Display.Price)
	assert.Equal(t, "$1.50M", all.Tokens[0].Display.MarketCap)

	_, env = do(t, http.MethodGet, ts.URL+"/api/tokens?category=migrated", "")
	var migrated tokensData
	require.NoError(t, json.Unmarshal(env.Data, &migrated))
	assert.Equal(t, []string{"token-migrated-0"}, tokenIDs(migrated))

	resp, env = do(t, http.MethodGet, ts.URL+"/api/tokens?category=nope", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "bad_request", env.Error.Code)
	assert.NotEmpty(t, env.Error.TraceID)
}

func TestToken_NotFound(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, env := do(t, http.MethodGet, ts.URL+"/api/tokens/token-new-pairs-9", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/tokens/token-new-pairs-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSort_ToggleAndPut(t *testing.T) {
	t.Parallel()
	ts, svc := newTestServer(t)

	resp, env := do(t, http.MethodPost, ts.URL+"/api/sort/toggle", `{"field":"marketCap"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s domain.Sort
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, domain.Sort{Field: domain.SortMarketCap, Direction: domain.DirDesc}, s)

	_, env = do(t, http.MethodGet, ts.URL+"/api/tokens", "")
	var d tokensData
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, []string{"token-new-pairs-0", "token-migrated-0", "token-new-pairs-1"}, tokenIDs(d))

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/sort/toggle", `{"field":"bogus"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/sort/toggle", `{"field":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/api/sort", `{"field":"price","direction":"asc"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.Sort{Field: domain.SortPrice, Direction: domain.DirAsc}, svc.Sort())
}

func TestSort_BooleanFieldKeepsOrder(t *testing.T) {
	t.Parallel()
	ts, svc := newTestServer(t)

	resp, _ := do(t, http.MethodPut, ts.URL+"/api/sort", `{"field":"verified","direction":"asc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.Sort{Field: domain.SortVerified, Direction: domain.DirAsc}, svc.Sort())

	_, env := do(t, http.MethodGet, ts.URL+"/api/tokens", "")
	var d tokensData
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, []string{"token-new-pairs-0", "token-new-pairs-1", "token-migrated-0"}, tokenIDs(d))
}

func TestFilter_PatchNullAndClear(t *testing.T) {
	t.Parallel()
	ts, svc := newTestServer(t)

	resp, _ := do(t, http.MethodPatch, ts.URL+"/api/filter", `{"chain":["SOL","ETH"],"minMarketCap":20000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"token-new-pairs-0"}, idsOf(svc.Visible()))

	// omitted chain is kept, explicit null clears the bound
	resp, env := do(t, http.MethodPatch, ts.URL+"/api/filter", `{"minMarketCap":null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var f domain.Filter
	require.NoError(t, json.Unmarshal(env.Data, &f))
	assert.Equal(t, []domain.Chain{domain.ChainSOL, domain.ChainETH}, f.Chain)
	assert.Nil(t, f.MinMarketCap)

	resp, _ = do(t, http.MethodPatch, ts.URL+"/api/filter", `{"chain":["XRP"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, ts.URL+"/api/filter", `{"colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/filter/verified/toggle", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/filter/chain/BSC/toggle", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []domain.Chain{domain.ChainSOL, domain.ChainETH, domain.ChainBSC}, svc.Filter().Chain)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/filter", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, svc.Filter().Active())
}

func TestSelectionAndOverview(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/tokens/token-migrated-0/select", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, env := do(t, http.MethodGet, ts.URL+"/api/overview", "")
	var ov service.Overview
	require.NoError(t, json.Unmarshal(env.Data, &ov))
	assert.Equal(t, 3, ov.Total)
	require.NotNil(t, ov.Selected)
	assert.Equal(t, "token-migrated-0", ov.Selected.ID)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/selection", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/tokens/ghost/select", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "tokentable_store_visible_tokens")
}

func TestGzipOnAPI(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/tokens", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	// explicit header disables transparent decompression
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}

func TestStream_InitialAndUpdate(t *testing.T) {
	t.Parallel()
	ts, svc := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan []byte, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				events <- []byte(data)
			}
		}
		close(events)
	}()

	first := readEvent(t, events)
	assert.Len(t, first.Sections[domain.CategoryNewPairs], 2)

	price := 99.0
	require.True(t, svc.ApplyPriceUpdate(ctx, domain.PricePatch{ID: "token-migrated-0", Price: &price}))

	next := readEvent(t, events)
	assert.Greater(t, next.Version, first.Version)
	require.Len(t, next.Sections[domain.CategoryMigrated], 1)
	assert.Equal(t, 99.0, next.Sections[domain.CategoryMigrated][0].Price)
	assert.Equal(t, "$99.000000", next.Sections[domain.CategoryMigrated][0].Display.Price)
}

func readEvent(t *testing.T, events <-chan []byte) streamEvent {
	t.Helper()

	select {
	case b, ok := <-events:
		require.True(t, ok, "stream closed")
		var ev streamEvent
		require.NoError(t, json.Unmarshal(b, &ev))
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}
	return streamEvent{}
}

type streamEvent struct {
	Version  uint64 `json:"version"`
	Sections map[domain.Category][]struct {
		ID      string  `json:"id"`
		Price   float64 `json:"price"`
		Display struct {
			Price string `json:"price"`
		} `json:"display"`
	} `json:"sections"`
}

func idsOf(toks []domain.Token) []string {
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.ID)
	}
	return out
}
