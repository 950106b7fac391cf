package search

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-mesh/gateway-registry/pkg/embedding/providers"
	"github.com/mcp-mesh/gateway-registry/pkg/models"
	"github.com/mcp-mesh/gateway-registry/pkg/repository/vector"
)

// fakeReader is an in-test registry with mutable enabled state
type fakeReader struct {
	mu      sync.Mutex
	servers map[string]serverState
	agents  map[string]bool
}

type serverState struct {
	name    string
	enabled bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		servers: make(map[string]serverState),
		agents:  make(map[string]bool),
	}
}

func (r *fakeReader) addServer(id, name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[id] = serverState{name: name, enabled: enabled}
}

func (r *fakeReader) setServerEnabled(id string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.servers[id]
	s.enabled = enabled
	r.servers[id] = s
}

func (r *fakeReader) ServerState(id string) (string, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[id]
	return s.name, s.enabled, ok
}

func (r *fakeReader) AgentState(id string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	enabled, ok := r.agents[id]
	return enabled, ok
}

type searchFixture struct {
	engine  *Engine
	indexer *Indexer
	store   *vector.MemoryStore
	reader  *fakeReader
	mock    *providers.MockProvider
}

func newSearchFixture(t *testing.T, opts Options) *searchFixture {
	t.Helper()

	mock := providers.NewMockProvider(testDims)
	embedder := newTestEmbedder(t, mock)
	store := vector.NewMemoryStore()
	require.NoError(t, store.EnsureIndex(context.Background(), testDims))
	reader := newFakeReader()

	indexer, err := NewIndexer(IndexerConfig{Embedder: embedder, Store: store})
	require.NoError(t, err)

	engine, err := NewEngine(EngineConfig{
		Embedder: embedder,
		Store:    store,
		Reader:   reader,
		Options:  opts,
	})
	require.NoError(t, err)

	return &searchFixture{engine: engine, indexer: indexer, store: store, reader: reader, mock: mock}
}

func (f *searchFixture) indexServer(t *testing.T, server *models.Server) {
	t.Helper()
	require.NoError(t, f.indexer.IndexServer(context.Background(), server))
	f.reader.addServer(server.ID, server.Name, server.Enabled)
}

func registryServers() []*models.Server {
	return []*models.Server{
		{
			ID:          "/weather-api",
			Name:        "Weather API",
			Description: "Weather forecasts and current conditions for any city",
			Tags:        []string{"weather", "forecast"},
			Enabled:     true,
			Tools: []models.Tool{
				{Name: "get_forecast", Description: "Get the weather forecast for a city"},
			},
		},
		{
			ID:          "/weather-archive",
			Name:        "Weather Archive",
			Description: "Historical weather measurements and climate records",
			Tags:        []string{"weather", "history"},
			Enabled:     true,
			Tools: []models.Tool{
				{Name: "query_history", Description: "Query historical weather data"},
			},
		},
		{
			ID:          "/file-manager",
			Name:        "File Manager",
			Description: "Read, write and organize files",
			Tags:        []string{"files"},
			Enabled:     true,
			Tools: []models.Tool{
				{Name: "read_file", Description: "Read a file from disk"},
				{Name: "write_file", Description: "Write a file to disk"},
			},
		},
	}
}

func TestSearchRanksRelevantServersFirst(t *testing.T) {
	f := newSearchFixture(t, Options{})
	for _, s := range registryServers() {
		f.indexServer(t, s)
	}

	rs, err := f.engine.Search(context.Background(), Query{Text: "weather forecast"})
	require.NoError(t, err)

	require.NotEmpty(t, rs.Servers)
	assert.Equal(t, "/weather-api", rs.Servers[0].EntityID)
	assert.False(t, rs.Degraded)

	for i := 1; i < len(rs.Servers); i++ {
		assert.GreaterOrEqual(t, rs.Servers[i-1].Score, rs.Servers[i].Score)
	}
	for _, hit := range rs.Servers {
		assert.GreaterOrEqual(t, hit.Score, 0.0)
		assert.LessOrEqual(t, hit.Score, 1.0)
	}
}

func TestSearchReturnsToolsWithOwnerMetadata(t *testing.T) {
	f := newSearchFixture(t, Options{})
	for _, s := range registryServers() {
		f.indexServer(t, s)
	}

	rs, err := f.engine.Search(context.Background(), Query{Text: "get forecast for a city"})
	require.NoError(t, err)

	require.NotEmpty(t, rs.Tools)
	top := rs.Tools[0]
	assert.Equal(t, "/weather-api/get_forecast", top.EntityID)
	assert.Equal(t, "/weather-api", top.OwnerID)
	assert.Equal(t, "Weather API", top.OwnerName)
}

func TestSearchRespectsMaxResultsPerType(t *testing.T) {
	f := newSearchFixture(t, Options{})
	for _, s := range registryServers() {
		f.indexServer(t, s)
	}

	rs, err := f.engine.Search(context.Background(), Query{Text: "weather", MaxResults: 2})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(rs.Servers), 2)
	assert.LessOrEqual(t, len(rs.Tools), 2)
	assert.Equal(t, len(rs.Servers), rs.TotalServers)
}

func TestSearchShortQueryReturnsEmpty(t *testing.T) {
	f := newSearchFixture(t, Options{})
	for _, s := range registryServers() {
		f.indexServer(t, s)
	}

	for _, q := range []string{"w", " ", "", "!"} {
		rs, err := f.engine.Search(context.Background(), Query{Text: q})
		require.NoError(t, err, "short queries are not errors")
		assert.Empty(t, rs.Servers)
		assert.Empty(t, rs.Tools)
		assert.Empty(t, rs.Agents)
	}
}

func TestSearchExcludesDisabledServersAndTheirTools(t *testing.T) {
	f := newSearchFixture(t, Options{})
	for _, s := range registryServers() {
		f.indexServer(t, s)
	}

	f.reader.setServerEnabled("/weather-api", false)

	rs, err := f.engine.Search(context.Background(), Query{Text: "weather forecast"})
	require.NoError(t, err)

	for _, hit := range rs.Servers {
		assert.NotEqual(t, "/weather-api", hit.EntityID)
	}
	for _, hit := range rs.Tools {
		assert.NotEqual(t, "/weather-api", hit.OwnerID, "tools of a disabled server are hidden")
	}

	// Re-enabling restores visibility with no re-index.
	f.reader.setServerEnabled("/weather-api", true)
	rs, err = f.engine.Search(context.Background(), Query{Text: "weather forecast"})
	require.NoError(t, err)
	assert.Equal(t, "/weather-api", rs.Servers[0].EntityID)
}

func TestSearchExcludesUnregisteredEntities(t *testing.T) {
	f := newSearchFixture(t, Options{})
	server := registryServers()[0]
	require.NoError(t, f.indexer.IndexServer(context.Background(), server))
	// Never added to the reader: a vector without a live registry entry
	// must not surface.

	rs, err := f.engine.Search(context.Background(), Query{Text: "weather forecast"})
	require.NoError(t, err)
	assert.Empty(t, rs.Servers)
	assert.Empty(t, rs.Tools)
}

func TestSearchTypeFilter(t *testing.T) {
	f := newSearchFixture(t, Options{})
	for _, s := range registryServers() {
		f.indexServer(t, s)
	}

	rs, err := f.engine.Search(context.Background(), Query{
		Text:  "weather forecast",
		Types: []string{models.EntityTypeTool},
	})
	require.NoError(t, err)
	assert.Empty(t, rs.Servers)
	assert.NotEmpty(t, rs.Tools)
}

func TestSearchIsDeterministic(t *testing.T) {
	f := newSearchFixture(t, Options{})
	for _, s := range registryServers() {
		f.indexServer(t, s)
	}

	first, err := f.engine.Search(context.Background(), Query{Text: "weather data"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := f.engine.Search(context.Background(), Query{Text: "weather data"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearchKeywordBoostLiftsLiteralMatches(t *testing.T) {
	f := newSearchFixture(t, Options{KeywordBoostWeight: 0.5})
	fNoBoost := newSearchFixture(t, Options{KeywordBoostWeight: 0.0001})

	for _, fx := range []*searchFixture{f, fNoBoost} {
		for _, s := range registryServers() {
			fx.indexServer(t, s)
		}
	}

	boosted, err := f.engine.Search(context.Background(), Query{Text: "weather forecast"})
	require.NoError(t, err)
	plain, err := fNoBoost.engine.Search(context.Background(), Query{Text: "weather forecast"})
	require.NoError(t, err)

	require.NotEmpty(t, boosted.Servers)
	require.NotEmpty(t, plain.Servers)

	// Both index the same corpus with the same embedder; the boosted
	// engine must score the literal "weather forecast" match at least as
	// high relative to its ceiling.
	assert.GreaterOrEqual(t, boosted.Servers[0].Score, plain.Servers[0].Score)
}

func TestSearchSelfSimilarity(t *testing.T) {
	f := newSearchFixture(t, Options{})
	server := registryServers()[0]
	f.indexServer(t, server)

	// Querying with the server's own description must rank it first with a
	// high score. The indexed document also carries the name and tags, so
	// similarity is high but not exactly 1.
	rs, err := f.engine.Search(context.Background(), Query{Text: server.Description})
	require.NoError(t, err)
	require.NotEmpty(t, rs.Servers)
	assert.Equal(t, server.ID, rs.Servers[0].EntityID)
	assert.Greater(t, rs.Servers[0].Score, 0.6)
}

func TestSearchDegradesToKeywordOnly(t *testing.T) {
	f := newSearchFixture(t, Options{})
	for _, s := range registryServers() {
		f.indexServer(t, s)
	}

	// Provider goes down after indexing.
	f.mock.Err = providers.ErrUnavailable

	rs, err := f.engine.Search(context.Background(), Query{Text: "forecast tomorrow"})
	require.NoError(t, err, "provider outage must not fail the search")
	assert.True(t, rs.Degraded)

	require.NotEmpty(t, rs.Servers)
	assert.Equal(t, "/weather-api", rs.Servers[0].EntityID, "keyword overlap still ranks")
	for _, hit := range rs.Servers {
		assert.LessOrEqual(t, hit.Score, 1.0)
	}

	// No literal overlap at all yields an empty, degraded result.
	rs, err = f.engine.Search(context.Background(), Query{Text: "quantum chromodynamics"})
	require.NoError(t, err)
	assert.True(t, rs.Degraded)
	assert.Empty(t, rs.Servers)
	assert.Empty(t, rs.Tools)
}

func TestSearchHardEmbeddingFailurePropagates(t *testing.T) {
	f := newSearchFixture(t, Options{})
	for _, s := range registryServers() {
		f.indexServer(t, s)
	}

	f.mock.Err = assert.AnError

	_, err := f.engine.Search(context.Background(), Query{Text: "weather forecast"})
	assert.Error(t, err, "non-degradable failures are not silently absorbed")
}

func TestKeywordFraction(t *testing.T) {
	meta := vector.Meta{
		Name:        "Weather API",
		Description: "Forecasts for cities",
		Tags:        []string{"climate"},
	}

	assert.Equal(t, 1.0, keywordFraction([]string{"weather"}, meta))
	assert.Equal(t, 0.5, keywordFraction([]string{"weather", "database"}, meta))
	assert.Equal(t, 1.0, keywordFraction([]string{"climate"}, meta), "tags count")
	assert.Equal(t, 0.0, keywordFraction([]string{"database"}, meta))
	assert.Equal(t, 0.0, keywordFraction(nil, meta))

	// Monotonic: adding a matching token never lowers the matched count.
	low := keywordFraction([]string{"database", "weather"}, meta)
	high := keywordFraction([]string{"weather", "forecasts"}, meta)
	assert.GreaterOrEqual(t, high, low)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"weather", "forecast"}, Tokenize("Weather,  FORECAST!"))
	assert.Equal(t, []string{"a2a", "agent"}, Tokenize("A2A-agent"))
	assert.Empty(t, Tokenize("!!! ..."))
}
