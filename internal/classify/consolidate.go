package classify

import (
	"fmt"
	"sort"

	"github.com/HendryAvila/strata/internal/errors"
)

// Group is a set of tasks classified together (usually one cluster).
type Group struct {
	Category string
	Score    int
	Members  []string
}

// Bucket is one workstream-to-be: a category and the tasks it will hold.
// MergedFrom lists the categories folded into it.
type Bucket struct {
	Category   string   `json:"category"`
	Members    []string `json:"members"`
	Score      int      `json:"score"`
	MergedFrom []string `json:"merged_from,omitempty"`
}

// Consolidate folds groups into at most maxBuckets buckets for one phase.
// Categories holding fewer than minTasks tasks merge into General. When
// more than maxBuckets categories remain, the smallest ones (then lowest
// score, then latest declared) merge into General. Empty buckets are never
// returned. Buckets come back in declaration order with General last.
func (c *Classifier) Consolidate(groups []Group, minTasks, maxBuckets int) []Bucket {
	byCat := make(map[string]*Bucket)
	for _, g := range groups {
		if len(g.Members) == 0 {
			continue
		}
		name := g.Category
		if _, ok := c.order[name]; !ok {
			name = General
		}
		b, ok := byCat[name]
		if !ok {
			b = &Bucket{Category: name}
			byCat[name] = b
		}
		b.Members = append(b.Members, g.Members...)
		b.Score += g.Score
	}

	general := byCat[General]
	mergeIntoGeneral := func(b *Bucket) {
		if general == nil {
			general = &Bucket{Category: General}
			byCat[General] = general
		}
		general.Members = append(general.Members, b.Members...)
		general.Score += b.Score
		general.MergedFrom = append(general.MergedFrom, b.Category)
		delete(byCat, b.Category)
	}

	for _, name := range c.names {
		if b, ok := byCat[name]; ok && len(b.Members) < minTasks {
			mergeIntoGeneral(b)
		}
	}

	var ranked []*Bucket
	for name, b := range byCat {
		if name != General {
			ranked = append(ranked, b)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		bi, bj := ranked[i], ranked[j]
		if len(bi.Members) != len(bj.Members) {
			return len(bi.Members) > len(bj.Members)
		}
		if bi.Score != bj.Score {
			return bi.Score > bj.Score
		}
		return c.order[bi.Category] < c.order[bj.Category]
	})

	if maxBuckets < 1 {
		maxBuckets = 1
	}
	total := len(ranked)
	if general != nil {
		total++
	}
	if total > maxBuckets {
		// folding anything creates General, which takes one slot
		keep := maxBuckets - 1
		for _, b := range ranked[keep:] {
			mergeIntoGeneral(b)
		}
	}

	out := make([]Bucket, 0, len(byCat))
	for _, b := range byCat {
		sort.Strings(b.Members)
		sort.Strings(b.MergedFrom)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return c.order[out[i].Category] < c.order[out[j].Category] })
	return out
}

// VerifyTotality checks that every id in want appears in exactly one
// bucket and that no bucket holds an id outside want.
func VerifyTotality(want []string, buckets []Bucket) error {
	seen := make(map[string]int, len(want))
	for _, b := range buckets {
		for _, id := range b.Members {
			seen[id]++
		}
	}

	var missing []string
	expected := make(map[string]bool, len(want))
	for _, id := range want {
		expected[id] = true
		if seen[id] != 1 {
			missing = append(missing, id)
		}
	}
	for id := range seen {
		if !expected[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return errors.NewTotalityError(missing).
		WithSuggestion(fmt.Sprintf("%d task(s) unassigned, duplicated or unknown", len(missing)))
}
