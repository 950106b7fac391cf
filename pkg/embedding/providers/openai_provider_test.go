package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider(ProviderConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "text-embedding-3-small",
		Dimensions: 3,
	})
	require.NoError(t, err)
	return p, srv
}

func TestOpenAIProviderEmbed(t *testing.T) {
	var gotAuth string
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		assert.Equal(t, []string{"alpha", "beta"}, req.Input)

		// Out-of-order data entries must still land at the right inputs.
		fmt.Fprint(w, `{"data":[
			{"embedding":[0.4,0.5,0.6],"index":1},
			{"embedding":[0.1,0.2,0.3],"index":0}
		]}`)
	})

	vectors, err := p.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}, vectors)
}

func TestOpenAIProviderEmptyInput(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	})

	vectors, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestOpenAIProviderServerError(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	})

	_, err := p.Embed(context.Background(), []string{"alpha"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestOpenAIProviderMalformedResponse(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})

	_, err := p.Embed(context.Background(), []string{"alpha"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIProviderDimensionMismatch(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2],"index":0}]}`)
	})

	_, err := p.Embed(context.Background(), []string{"alpha"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestOpenAIProviderCountMismatch(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`)
	})

	_, err := p.Embed(context.Background(), []string{"alpha", "beta"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIProviderTimeout(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Embed(ctx, []string{"alpha"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestOpenAIProviderConnectionRefused(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := p.Embed(context.Background(), []string{"alpha"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIProviderRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider(ProviderConfig{Dimensions: 3})
	assert.Error(t, err)
}
