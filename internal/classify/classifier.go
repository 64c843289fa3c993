package classify

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/log"
)

// SimilarityThreshold is the minimum similarity that earns points.
const SimilarityThreshold = 0.5

// Scorer returns, for one text, a similarity in [0,1] per category name.
// Implementations are external (an embedding service) and may be slow.
type Scorer interface {
	Similarity(ctx context.Context, text string, categories []string) (map[string]float64, error)
}

// Options configures a Classifier.
type Options struct {
	Scorer      Scorer
	Timeout     time.Duration
	Concurrency int
	Logger      *log.Logger
}

// Result is the classification of a group of tasks.
type Result struct {
	Category   string         `json:"category"`
	Scores     map[string]int `json:"scores"`
	Confidence float64        `json:"confidence"`
	Degraded   bool           `json:"degraded,omitempty"`
	Members    []string       `json:"members"`
}

type compiledCategory struct {
	Category
	keywords []*regexp.Regexp
	patterns []*regexp.Regexp
}

// Classifier scores task text against an ordered list of categories.
// It is safe for concurrent use.
type Classifier struct {
	categories  []compiledCategory
	names       []string
	order       map[string]int
	scorer      Scorer
	timeout     time.Duration
	concurrency int
	logger      *log.Logger
}

// New compiles categories into a Classifier.
func New(categories []Category, opts Options) (*Classifier, error) {
	c := &Classifier{
		order:       make(map[string]int, len(categories)+1),
		scorer:      opts.Scorer,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		logger:      log.Or(opts.Logger).WithComponent("classify"),
	}
	if c.timeout <= 0 {
		c.timeout = 2 * time.Second
	}
	if c.concurrency <= 0 {
		c.concurrency = 4
	}

	for i, cat := range categories {
		if cat.Name == "" || cat.Name == General {
			return nil, fmt.Errorf("classify: category %d: invalid name %q", i, cat.Name)
		}
		if _, dup := c.order[cat.Name]; dup {
			return nil, fmt.Errorf("classify: duplicate category %q", cat.Name)
		}
		cc := compiledCategory{Category: cat}
		for _, kw := range cat.Keywords {
			cc.keywords = append(cc.keywords, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		for _, p := range cat.Patterns {
			re, err := regexp.Compile(`(?i)\b(?:` + p + `)\b`)
			if err != nil {
				return nil, fmt.Errorf("classify: category %q pattern %q: %w", cat.Name, p, err)
			}
			cc.patterns = append(cc.patterns, re)
		}
		c.order[cat.Name] = i
		c.names = append(c.names, cat.Name)
		c.categories = append(c.categories, cc)
	}
	c.order[General] = len(categories)
	return c, nil
}

// Default returns a Classifier over DefaultCategories.
func Default(opts Options) *Classifier {
	c, err := New(DefaultCategories(), opts)
	if err != nil {
		panic(err) // built-in table is static
	}
	return c
}

// Categories returns the category names in declaration order, without General.
func (c *Classifier) Categories() []string {
	return append([]string(nil), c.names...)
}

// ScoreText returns the keyword and pattern score of text per category.
func (c *Classifier) ScoreText(text string) map[string]int {
	scores := make(map[string]int, len(c.categories))
	for _, cat := range c.categories {
		score := 0
		for _, re := range cat.keywords {
			if re.MatchString(text) {
				score++
			}
		}
		for _, re := range cat.patterns {
			if re.MatchString(text) {
				score += 2
			}
		}
		if score > 0 {
			scores[cat.Name] = score
		}
	}
	return scores
}

// Classify picks one category for a group of tasks. Scores are summed
// over the members. The highest score that meets its category's minimum
// wins; ties go to the category declared first; no winner means General.
// A failing or slow Scorer degrades the result but never fails it.
func (c *Classifier) Classify(ctx context.Context, tasks []hierarchy.Task) Result {
	res := Result{Scores: make(map[string]int)}
	texts := make([]string, 0, len(tasks))
	for _, t := range tasks {
		res.Members = append(res.Members, t.ID)
		texts = append(texts, t.Text())
		for name, s := range c.ScoreText(t.Text()) {
			res.Scores[name] += s
		}
	}
	sort.Strings(res.Members)

	bonus, degraded := c.similarity(ctx, texts)
	for name, b := range bonus {
		res.Scores[name] += b
	}
	res.Degraded = degraded

	res.Category = General
	best, total := 0, 0
	for _, cat := range c.categories {
		score := res.Scores[cat.Name]
		total += score
		if score >= cat.MinScore && score > best {
			best = score
			res.Category = cat.Name
		}
	}

	switch {
	case res.Category == General:
		res.Confidence = 0
	case total > 0:
		res.Confidence = float64(best) / float64(total)
	}
	if res.Degraded && res.Confidence > 0.5 {
		res.Confidence = 0.5
	}
	return res
}

// similarity queries the Scorer for every text concurrently under the
// configured timeout and converts similarities into points.
func (c *Classifier) similarity(ctx context.Context, texts []string) (map[string]int, bool) {
	if c.scorer == nil || len(texts) == 0 {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Each goroutine writes only its own slot. A scorer that ignores ctx
	// may still be running after the deadline; results is not read then.
	results := make([]map[string]float64, len(texts))
	done := make(chan error, 1)
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for i, text := range texts {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				sims, err := c.scorer.Similarity(gctx, text, c.names)
				if err != nil {
					return err
				}
				results[i] = sims
				return nil
			})
		}
		done <- g.Wait()
	}()

	var err error
	select {
	case err = <-done:
		if err == nil {
			err = ctx.Err()
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.logger.WithError(err).Warn("similarity unavailable, classifying on keywords only",
			"texts", len(texts), "timeout", c.timeout.String())
		return nil, true
	}

	bonus := make(map[string]int)
	for _, sims := range results {
		for name, sim := range sims {
			if _, known := c.order[name]; !known || name == General {
				continue
			}
			if sim >= SimilarityThreshold {
				bonus[name] += int(math.Round(2 * sim))
			}
		}
	}
	return bonus, false
}
