package agent

import "strings"

// Capability is a declared skill tag used for task routing.
type Capability string

const (
	CapabilityCodeGeneration Capability = "code_generation"
	CapabilityCodeReview     Capability = "code_review"
	CapabilityDesign         Capability = "design"
	CapabilityTesting        Capability = "testing"
	CapabilityResearch       Capability = "research"
	CapabilitySecurity       Capability = "security"
	CapabilityDocumentation  Capability = "documentation"
	CapabilityOptimization   Capability = "optimization"
	CapabilityWebSearch      Capability = "web_search"
	CapabilityFileOperations Capability = "file_operations"
)

// Scorer estimates how well a capability set fits a free-text task.
// Implementations must be pure functions of (capabilities, task).
type Scorer interface {
	// Score returns a confidence score in [0, 1].
	Score(capabilities []Capability, task string) float64
}

// scoreIncrement is added for every keyword match before clamping.
const scoreIncrement = 0.2

// capabilityKeywords maps each capability to the keyword stems scanned for
// in lowercased task text.
var capabilityKeywords = map[Capability][]string{
	CapabilityCodeGeneration: {"implement", "create", "build", "code", "develop", "function", "class"},
	CapabilityCodeReview:     {"review", "check", "analyze", "inspect", "evaluate"},
	CapabilityDesign:         {"design", "ui", "ux", "layout", "interface", "style", "css", "visual"},
	CapabilityTesting:        {"test", "verify", "validate", "qa", "bug", "fix", "debug"},
	CapabilityResearch:       {"research", "find", "search", "look up", "investigate", "explore"},
	CapabilitySecurity:       {"security", "vulnerability", "secure", "protect", "authentication", "authorization"},
	CapabilityDocumentation:  {"document", "readme", "docs", "explain", "comment", "describe"},
	CapabilityOptimization:   {"optimize", "performance", "speed", "efficiency", "improve", "refactor"},
	CapabilityWebSearch:      {"web", "online", "browse", "look up", "search"},
	CapabilityFileOperations: {"file", "directory", "read", "write", "save"},
}

// KeywordScorer is the default Scorer: a cheap substring heuristic, not NLP
// classification. Exact ties between profiles are expected and are broken by
// registration order in the Registry.
type KeywordScorer struct{}

// Score implements Scorer. Every keyword of every declared capability found
// as a substring of the lowercased task adds a fixed increment; the result
// is clamped to 1.0.
func (KeywordScorer) Score(capabilities []Capability, task string) float64 {
	taskLower := strings.ToLower(task)
	score := 0.0

	for _, capability := range capabilities {
		for _, keyword := range capabilityKeywords[capability] {
			if strings.Contains(taskLower, keyword) {
				score += scoreIncrement
			}
		}
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}
