package agent

import (
	"sync"

	"go.uber.org/zap"

	"github.com/maestroflow/maestro/internal/model"
)

// Profile describes one executor: its name, role, and declared capabilities.
type Profile struct {
	Name         string       `json:"name"`
	Role         string       `json:"role"`
	Description  string       `json:"description"`
	Capabilities []Capability `json:"capabilities"`
}

// Registry is a process-wide catalog of executor profiles. It is constructed
// explicitly and passed by reference; all operations are safe for concurrent
// use by multiple workflow drivers.
type Registry struct {
	logger *zap.Logger
	scorer Scorer
	mu     sync.RWMutex
	byName map[string]*Profile
	order  []string // first-registration order, used for tie-breaks
	inbox  map[string][]model.AgentMessage
}

// NewRegistry creates an empty registry using the given scorer. A nil scorer
// falls back to the keyword heuristic.
func NewRegistry(scorer Scorer, logger *zap.Logger) *Registry {
	if scorer == nil {
		scorer = KeywordScorer{}
	}
	return &Registry{
		logger: logger.Named("agent-registry"),
		scorer: scorer,
		byName: make(map[string]*Profile),
		inbox:  make(map[string][]model.AgentMessage),
	}
}

// Register inserts or overwrites a profile keyed by name. Overwriting is not
// an error; the profile keeps its original registration position.
func (r *Registry) Register(profile Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[profile.Name]; !exists {
		r.order = append(r.order, profile.Name)
	}
	p := profile
	r.byName[profile.Name] = &p

	r.logger.Info("Agent registered",
		zap.String("name", profile.Name),
		zap.String("role", profile.Role),
		zap.Int("capabilities", len(profile.Capabilities)))
}

// Get returns the profile with the given name, or false if absent.
func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byName[name]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// All returns every registered profile in registration order.
func (r *Registry) All() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]Profile, 0, len(r.order))
	for _, name := range r.order {
		profiles = append(profiles, *r.byName[name])
	}
	return profiles
}

// FindBest scores every registered profile against the task text and returns
// the strictly highest scorer. Exact ties keep the earlier-registered
// profile. If the registry is empty or every score is zero, ok is false and
// the caller must apply its own default assignee policy.
func (r *Registry) FindBest(task string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Profile
	bestScore := 0.0

	for _, name := range r.order {
		p := r.byName[name]
		score := r.scorer.Score(p.Capabilities, task)
		if score > bestScore {
			bestScore = score
			best = p
		}
	}

	if best == nil {
		return Profile{}, false
	}
	return *best, true
}

// Send delivers a message to the named recipient's inbox. An unknown
// recipient is silently ignored; delivery is best-effort by contract.
func (r *Registry) Send(msg model.AgentMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[msg.To]; !ok {
		return
	}
	r.inbox[msg.To] = append(r.inbox[msg.To], msg)
}

// Broadcast delivers a message to every registered agent except the sender.
func (r *Registry) Broadcast(msg model.AgentMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if name == msg.From {
			continue
		}
		r.inbox[name] = append(r.inbox[name], msg)
	}
}

// PendingMessages returns and clears the inbox of the named agent.
func (r *Registry) PendingMessages(name string) []model.AgentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages := r.inbox[name]
	delete(r.inbox, name)
	return messages
}

// DefaultProfiles returns the built-in specialized agent set.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:        "Orchestrator",
			Role:        "orchestrator",
			Description: "Plans and coordinates work, breaks down objectives into tasks",
			Capabilities: []Capability{
				CapabilityResearch,
			},
		},
		{
			Name:        "Developer",
			Role:        "developer",
			Description: "Implements robust and efficient code with clean architecture",
			Capabilities: []Capability{
				CapabilityCodeGeneration,
				CapabilityCodeReview,
				CapabilityOptimization,
			},
		},
		{
			Name:        "UI/UX Designer",
			Role:        "ui_ux",
			Description: "Designs beautiful, intuitive interfaces with great UX",
			Capabilities: []Capability{
				CapabilityDesign,
			},
		},
		{
			Name:        "QA Tester",
			Role:        "qa",
			Description: "Verifies functionality, finds bugs, ensures quality",
			Capabilities: []Capability{
				CapabilityTesting,
				CapabilityCodeReview,
			},
		},
		{
			Name:        "Research",
			Role:        "research",
			Description: "Researches information, best practices, and documentation",
			Capabilities: []Capability{
				CapabilityResearch,
				CapabilityWebSearch,
			},
		},
		{
			Name:        "Security",
			Role:        "security",
			Description: "Analyzes code for security vulnerabilities and best practices",
			Capabilities: []Capability{
				CapabilitySecurity,
				CapabilityCodeReview,
			},
		},
		{
			Name:        "Documentation",
			Role:        "documentation",
			Description: "Generates documentation, READMEs, and API docs",
			Capabilities: []Capability{
				CapabilityDocumentation,
			},
		},
		{
			Name:         "Refiner",
			Role:         "refiner",
			Description:  "Synthesizes outputs from all agents into polished deliverables",
			Capabilities: []Capability{},
		},
	}
}
