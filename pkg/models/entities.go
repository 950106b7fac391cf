// Package models defines the registry entities eligible for indexing and
// search: MCP servers with their tools, and A2A agents with their skills.
package models

// Tool is a single tool exposed by an MCP server. Tools are owned by
// exactly one server and are addressed as "<serverID>/<toolName>".
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Server is a registered MCP server
type Server struct {
	// ID is the server's unique proxy path, e.g. "/weather-api"
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Enabled     bool     `json:"enabled"`
	Tools       []Tool   `json:"tools,omitempty"`
}

// ToolID returns the index identifier of a tool owned by this server
func (s *Server) ToolID(toolName string) string {
	return s.ID + "/" + toolName
}

// AgentSkill describes one capability of an A2A agent
type AgentSkill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Agent is a registered A2A agent
type Agent struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Tags        []string     `json:"tags,omitempty"`
	Enabled     bool         `json:"enabled"`
	Skills      []AgentSkill `json:"skills,omitempty"`
}

// Entity type discriminators used in vector index metadata and search
// filters.
const (
	EntityTypeServer = "server"
	EntityTypeTool   = "tool"
	EntityTypeAgent  = "agent"
)
