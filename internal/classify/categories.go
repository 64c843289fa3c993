// Package classify assigns tasks to workstream categories and consolidates
// the result into a bounded set of workstreams per phase.
//
// Scoring is keyword based: +1 per distinct keyword and +2 per distinct
// pattern found in a task's title and description, matched
// case-insensitively on word boundaries. An optional similarity Scorer can
// add points; when it is slow or fails the classifier keeps going on
// keywords alone (degraded mode).
package classify

// General is the fallback category for tasks no other category claims.
const General = "general"

// Category is one workstream category. Keywords and Patterns are matched
// case-insensitively on word boundaries; Patterns are regular expressions.
type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Title    string   `yaml:"title" json:"title"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Patterns []string `yaml:"patterns" json:"patterns"`
	MinScore int      `yaml:"min_score" json:"min_score"`
}

// DefaultCategories returns the built-in categories in declaration order.
// Declaration order breaks score ties.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:     "quote_calculator",
			Title:    "Quote Calculator System",
			Keywords: []string{"quote", "calculator", "pricing", "estimate", "quotation"},
			Patterns: []string{`quote\s+calculator`, `pricing\s+logic`, `quote\s+system`},
			MinScore: 1,
		},
		{
			Name:     "authentication",
			Title:    "Authentication & User Management",
			Keywords: []string{"auth", "login", "user", "profile", "session", "authentication", "signup", "signin"},
			Patterns: []string{`user\s+management`, `authentication\s+system`, `login\s+system`},
			MinScore: 2,
		},
		{
			Name:     "dashboard",
			Title:    "Dashboard Features",
			Keywords: []string{"dashboard", "admin", "management", "overview", "analytics"},
			Patterns: []string{`admin\s+dashboard`, `management\s+interface`},
			MinScore: 1,
		},
		{
			Name:     "api_development",
			Title:    "API Development",
			Keywords: []string{"api", "endpoint", "service", "backend", "rest", "graphql"},
			Patterns: []string{`api\s+endpoint`, `backend\s+service`, `rest\s+api`},
			MinScore: 1,
		},
		{
			Name:     "database",
			Title:    "Database Architecture",
			Keywords: []string{"database", "schema", "table", "migration", "sql", "db"},
			Patterns: []string{`database\s+schema`, `data\s+model`, `table\s+structure`},
			MinScore: 1,
		},
		{
			Name:     "ui_development",
			Title:    "UI Components & Pages",
			Keywords: []string{"ui", "component", "page", "interface", "frontend", "view", "screen"},
			Patterns: []string{`ui\s+component`, `user\s+interface`, `frontend\s+page`},
			MinScore: 2,
		},
		{
			Name:     "testing",
			Title:    "Testing Framework",
			Keywords: []string{"test", "testing", "quality", "qa", "unit", "integration", "e2e"},
			Patterns: []string{`unit\s+test`, `integration\s+test`, `test\s+suite`},
			MinScore: 1,
		},
		{
			Name:     "deployment",
			Title:    "Deployment & DevOps",
			Keywords: []string{"deploy", "deployment", "production", "release", "build", "ci", "cd"},
			Patterns: []string{`deployment\s+pipeline`, `ci/cd`, `production\s+release`},
			MinScore: 1,
		},
	}
}

// Title returns the workstream title for a category name.
func (c *Classifier) Title(name string) string {
	if name == General {
		return "General Tasks"
	}
	for _, cat := range c.categories {
		if cat.Name == name {
			return cat.Title
		}
	}
	return name
}
