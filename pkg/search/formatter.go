package search

import (
	"github.com/mcp-mesh/gateway-registry/pkg/models"
)

// Formatter shapes ranked hits into the final result set. It is a pure
// function of its inputs: no side effects, deterministic output.
type Formatter struct {
	boostWeight float64
}

// NewFormatter creates a formatter for the given keyword boost weight
func NewFormatter(boostWeight float64) *Formatter {
	if boostWeight < 0 {
		boostWeight = 0
	}
	return &Formatter{boostWeight: boostWeight}
}

// Format normalizes scores, groups hits by entity type, and truncates
// each group to maxResults. Hits must already be sorted.
//
// Normalization divides the combined score by its maximum attainable
// value (1 + boostWeight), across the full candidate pool before
// truncation. Unlike min-max this keeps absolute relevance: the top
// result only reaches 1.0 when it is a perfect vector match with every
// keyword present, not merely because it happens to be first.
func (f *Formatter) Format(hits []Hit, maxResults int, degraded bool) *ResultSet {
	rs := &ResultSet{
		Servers:  []Hit{},
		Tools:    []Hit{},
		Agents:   []Hit{},
		Degraded: degraded,
	}

	ceiling := 1 + f.boostWeight
	for _, hit := range hits {
		hit.Score = clamp01(hit.Score / ceiling)

		switch hit.EntityType {
		case models.EntityTypeServer:
			if len(rs.Servers) < maxResults {
				rs.Servers = append(rs.Servers, hit)
			}
		case models.EntityTypeTool:
			if len(rs.Tools) < maxResults {
				rs.Tools = append(rs.Tools, hit)
			}
		case models.EntityTypeAgent:
			if len(rs.Agents) < maxResults {
				rs.Agents = append(rs.Agents, hit)
			}
		}
	}

	rs.TotalServers = len(rs.Servers)
	rs.TotalTools = len(rs.Tools)
	rs.TotalAgents = len(rs.Agents)
	return rs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
