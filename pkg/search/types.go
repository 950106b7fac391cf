// Package search implements the registry's hybrid search core: the entity
// indexer (write path), the hybrid query engine (read path), and the
// result formatter.
package search

import (
	"context"
	"strings"
	"unicode"
)

// Embedder is the slice of the embedding service the search core needs
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Reader resolves the live enabled state of registry entities. Disabled
// state is authoritative at query time: toggling an entity off hides it
// from results immediately, with no re-index.
type Reader interface {
	// ServerState returns the server's display name and enabled flag.
	// ok is false when the server is not registered.
	ServerState(id string) (name string, enabled bool, ok bool)

	// AgentState returns the agent's enabled flag. ok is false when the
	// agent is not registered.
	AgentState(id string) (enabled bool, ok bool)
}

// Query is one search request
type Query struct {
	// Text is the free-text query
	Text string

	// Types restricts results to a subset of {server, tool, agent}.
	// Empty means all types.
	Types []string

	// MaxResults caps results per entity type. Zero means the configured
	// default.
	MaxResults int
}

// Hit is one ranked result entry
type Hit struct {
	EntityID    string   `json:"path"`
	EntityType  string   `json:"-"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Score       float64  `json:"relevance_score"`

	// OwnerID and OwnerName reference the owning server for tool hits
	OwnerID   string `json:"server_path,omitempty"`
	OwnerName string `json:"server_name,omitempty"`
}

// ResultSet is the shaped output of one search: three ordered sequences,
// one per entity type, with normalized scores in [0,1]. Never persisted.
type ResultSet struct {
	Servers []Hit `json:"servers"`
	Tools   []Hit `json:"tools"`
	Agents  []Hit `json:"agents"`

	TotalServers int `json:"total_servers"`
	TotalTools   int `json:"total_tools"`
	TotalAgents  int `json:"total_agents"`

	// Degraded is set when semantic ranking was unavailable and the
	// results were scored by keyword overlap only.
	Degraded bool `json:"degraded,omitempty"`
}

// Tokenize lowercases the text and splits it on every non-alphanumeric
// rune, producing the normalized token set used for keyword matching.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
