package hierarchy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// PhasePrefix marks ids in the phase namespace.
	PhasePrefix = "phase_"
	// WorkstreamPrefix marks ids of workstreams created by strata.
	WorkstreamPrefix = "root_"
	// TaskPrefix marks ids of tasks created through placement.
	TaskPrefix = "task_"
)

// IsPhaseID reports whether id lives in the phase namespace.
func IsPhaseID(id string) bool {
	return strings.HasPrefix(id, PhasePrefix)
}

// IsWorkstreamID reports whether id carries the workstream prefix. The
// prefix is a naming convention only; the role is still derived from the
// parent pointer (see Index.Role).
func IsWorkstreamID(id string) bool {
	return strings.HasPrefix(id, WorkstreamPrefix)
}

// WorkstreamID builds the id of the workstream for category in phaseID,
// e.g. root_phase_1_foundation_authentication.
func WorkstreamID(phaseID, category string) string {
	return WorkstreamPrefix + phaseID + "_" + category
}

// NewTaskID returns a fresh task id.
func NewTaskID() string {
	return TaskPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// PhaseID builds a phase id from its ordinal and name,
// e.g. (1, "Foundation") → phase_1_foundation.
func PhaseID(ordinal int, name string) string {
	return fmt.Sprintf("%s%d_%s", PhasePrefix, ordinal, Slugify(name))
}

const maxSlugLen = 40

// Slugify converts a free-text name into an id-safe slug using
// underscores: "Core Intelligence!" → "core_intelligence".
// Empty input returns "unnamed".
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	prevSep := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevSep = false
		case r == ' ' || r == '_' || r == '-':
			if !prevSep {
				b.WriteByte('_')
				prevSep = true
			}
		}
	}

	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return "unnamed"
	}
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "_")
	}
	return slug
}
