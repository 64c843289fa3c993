package phase

import "github.com/HendryAvila/strata/internal/hierarchy"

// FoundationID is the id of the first phase. Cold-start migrations place
// every task here.
const FoundationID = "phase_1_foundation"

// Definition is the template a phase is created from.
type Definition struct {
	Type          string   `json:"type"`
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Ordinal       int      `json:"ordinal"`
	Prerequisites []string `json:"prerequisites"`
	Objectives    []string `json:"objectives"`
	TheoryFocus   []string `json:"theory_focus"`
}

var definitions = []Definition{
	{
		Type:        "foundation",
		ID:          FoundationID,
		Title:       "Phase 1: Foundation",
		Description: "Core system architecture, database, authentication, and basic APIs",
		Ordinal:     1,
		Objectives:  []string{"Core system architecture", "Database", "Authentication", "Basic APIs"},
		TheoryFocus: []string{"System foundation and core data structures"},
	},
	{
		Type:          "intelligence",
		ID:            "phase_2_intelligence",
		Title:         "Phase 2: Intelligence",
		Description:   "RAG system, embeddings, context management, and AI integration",
		Ordinal:       2,
		Prerequisites: []string{FoundationID},
		Objectives:    []string{"RAG system", "Embeddings", "Context management", "AI integration"},
		TheoryFocus:   []string{"Knowledge systems and AI intelligence integration"},
	},
	{
		Type:          "coordination",
		ID:            "phase_3_coordination",
		Title:         "Phase 3: Coordination",
		Description:   "Multi-agent workflows, task orchestration, and system integration",
		Ordinal:       3,
		Prerequisites: []string{"phase_2_intelligence"},
		Objectives:    []string{"Multi-agent workflows", "Task orchestration", "System integration"},
		TheoryFocus:   []string{"Agent coordination and workflow orchestration"},
	},
	{
		Type:          "optimization",
		ID:            "phase_4_optimization",
		Title:         "Phase 4: Optimization",
		Description:   "Performance tuning, scaling, monitoring, and production readiness",
		Ordinal:       4,
		Prerequisites: []string{"phase_3_coordination"},
		Objectives:    []string{"Performance tuning", "Scaling", "Monitoring", "Production readiness"},
		TheoryFocus:   []string{"System optimization and production deployment"},
	},
}

// Definitions returns the standard phases in order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup finds a definition by id or by type ("foundation", ...).
func Lookup(key string) (Definition, bool) {
	for _, d := range definitions {
		if d.ID == key || d.Type == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Next returns the definition following id, if any.
func Next(id string) (Definition, bool) {
	d, ok := Lookup(id)
	if !ok {
		return Definition{}, false
	}
	for _, n := range definitions {
		if n.Ordinal == d.Ordinal+1 {
			return n, true
		}
	}
	return Definition{}, false
}

// Phase builds the record for d in status created.
func (d Definition) Phase() hierarchy.Phase {
	return hierarchy.Phase{
		ID:            d.ID,
		Title:         d.Title,
		Description:   d.Description,
		Ordinal:       d.Ordinal,
		Prerequisites: append([]string(nil), d.Prerequisites...),
		Status:        hierarchy.PhaseCreated,
		Objectives:    append([]string(nil), d.Objectives...),
		TheoryFocus:   append([]string(nil), d.TheoryFocus...),
	}
}
