// Package types contains common types used across the engine.
package types

// AgentID identifies an agent (player, bot, strategy) in the population.
// It is an opaque stable key; the engine never interprets its contents.
type AgentID string

// Method identifies a rating algorithm variant.
type Method string

// Rating algorithm variants selectable through configuration.
const (
	MethodElo       Method = "elo"
	MethodWDL       Method = "wdl"
	MethodGlicko    Method = "glicko"
	MethodGlicko2   Method = "glicko2"
	MethodTrueSkill Method = "trueskill"
	MethodBayesElo  Method = "bayeselo"
)

// Valid reports whether m names a known rating algorithm.
func (m Method) Valid() bool {
	switch m {
	case MethodElo, MethodWDL, MethodGlicko, MethodGlicko2, MethodTrueSkill, MethodBayesElo:
		return true
	}
	return false
}

// Ranking is an ordered sequence of agents, best first.
type Ranking []AgentID

// Position returns a map from agent to its 1-based position in the ranking.
func (r Ranking) Position() map[AgentID]int {
	pos := make(map[AgentID]int, len(r))
	for i, id := range r {
		pos[id] = i + 1
	}
	return pos
}

// Entry represents one row of a population rating snapshot.
type Entry struct {
	Rank    int     `json:"rank"`
	AgentID AgentID `json:"agent_id"`
	Score   float64 `json:"score"`
}
