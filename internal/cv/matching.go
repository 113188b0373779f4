package cv

import (
	"image"
	"math"
	"sort"
	"sync"
	"time"
)

// Match is one template found in a frame
type Match struct {
	ObjectID      string
	TemplateIndex int
	Location      image.Point // top-left of the template box, base level
	Score         float64     // 0-100
}

// MatchStats describes one matching pass
type MatchStats struct {
	TemplatesEvaluated int
	TemplatesSkipped   int // too large for the frame or without features
	Seeds              int
	Matches            int
	Duration           time.Duration
}

// Matcher scores frames against every template in a Store.
type Matcher struct {
	store *Store
}

// NewMatcher creates a matcher over store
func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// Match returns every template location scoring at least threshold percent
func (m *Matcher) Match(frame Frame, threshold float64) ([]Match, error) {
	matches, _, err := m.MatchWithStats(frame, threshold)
	return matches, err
}

// MatchWithStats is Match plus counters for logging
func (m *Matcher) MatchWithStats(frame Frame, threshold float64) ([]Match, *MatchStats, error) {
	start := time.Now()
	stats := &MatchStats{}

	if math.IsNaN(threshold) || threshold < 0 || threshold > 100 {
		return nil, stats, ErrInvalidThreshold
	}
	if err := frame.Validate(); err != nil {
		return nil, stats, err
	}

	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	templates := m.store.snapshot()
	if len(templates) == 0 {
		stats.Duration = time.Since(start)
		return []Match{}, stats, nil
	}

	cfg := m.store.config
	sig, err := ComputeSignature(frame, nil, m.store.modalities, cfg.SpreadT)
	if err != nil {
		return nil, stats, err
	}

	results := make([]templateResult, len(templates))
	workers := cfg.Workers
	if workers <= 1 {
		for i, tmpl := range templates {
			results[i] = matchTemplate(sig, tmpl, threshold, cfg.SeedThreshold)
		}
	} else {
		var wg sync.WaitGroup
		next := make(chan int)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range next {
					results[i] = matchTemplate(sig, templates[i], threshold, cfg.SeedThreshold)
				}
			}()
		}
		for i := range templates {
			next <- i
		}
		close(next)
		wg.Wait()
	}

	matches := []Match{}
	for _, r := range results {
		if r.skipped {
			stats.TemplatesSkipped++
			continue
		}
		stats.TemplatesEvaluated++
		stats.Seeds += r.seeds
		matches = append(matches, r.matches...)
	}
	stats.Matches = len(matches)
	stats.Duration = time.Since(start)
	return matches, stats, nil
}

type templateResult struct {
	matches []Match
	seeds   int
	skipped bool
}

// candidate location for one template before suppression. Everything but
// seed depends only on the location.
type hit struct {
	at        image.Point
	seed      float64 // best coarse grid score among the seeds that led here
	score     float64 // base level score
	exact     int
	deviation float64
}

// beats orders hits for suppression
func (h hit) beats(o hit) bool {
	switch {
	case h.score != o.score:
		return h.score > o.score
	case h.exact != o.exact:
		return h.exact > o.exact
	case h.deviation != o.deviation:
		return h.deviation < o.deviation
	case h.at.Y != o.at.Y:
		return h.at.Y < o.at.Y
	default:
		return h.at.X < o.at.X
	}
}

func matchTemplate(sig *Signature, tmpl *Template, threshold, seedFloor float64) templateResult {
	seedLevel := tmpl.SeedLevel()
	if seedLevel < 0 || len(tmpl.Levels) != len(sig.Levels) {
		return templateResult{skipped: true}
	}
	for l := 0; l <= seedLevel; l++ {
		if !levelFits(&sig.Levels[l], tmpl.Levels[l]) {
			return templateResult{skipped: true}
		}
	}

	level := &sig.Levels[seedLevel]
	seedTmpl := tmpl.Levels[seedLevel]
	var grid gridScores
	var ok bool
	if seedLevel == len(sig.Levels)-1 {
		grid, ok = gridSimilarity(level, seedTmpl)
	} else {
		grid, ok = stridedSimilarity(level, seedTmpl)
	}
	if !ok {
		return templateResult{skipped: true}
	}

	seedThreshold := math.Min(threshold, seedFloor)
	res := templateResult{}
	hits := make(map[image.Point]hit)
	nfSeed := len(seedTmpl.Features)
	for i, count := range grid.counts {
		seedScore := percent(int(count), nfSeed)
		if seedScore < seedThreshold {
			continue
		}
		res.seeds++

		g := grid.at(i)
		best, ok := refineWindow(level, seedTmpl,
			image.Point{X: g.X - 1, Y: g.Y - 1},
			image.Point{X: g.X + level.T, Y: g.Y + level.T})

		for l := seedLevel - 1; l >= 0 && ok; l-- {
			// forward spreading lets the parent trail the true position by up
			// to the parent's spread width
			lower := &sig.Levels[l]
			back := 2 * lower.T
			ahead := 2 * sig.Levels[l+1].T
			center := best.at.Mul(2)
			best, ok = refineWindow(lower, tmpl.Levels[l],
				image.Point{X: center.X - back, Y: center.Y - back},
				image.Point{X: center.X + ahead, Y: center.Y + ahead})
		}
		if !ok {
			continue
		}

		h := hit{
			at:        best.at,
			seed:      seedScore,
			score:     percent(best.count, tmpl.NumFeatures()),
			exact:     best.exact,
			deviation: best.deviation,
		}
		if prev, seen := hits[h.at]; !seen || h.seed > prev.seed {
			hits[h.at] = h
		}
	}

	for _, h := range suppressOverlaps(hits, tmpl.Width, tmpl.Height, seedFloor) {
		if h.score < threshold {
			continue
		}
		res.matches = append(res.matches, Match{
			ObjectID:      tmpl.ObjectID,
			TemplateIndex: tmpl.Index,
			Location:      h.at,
			Score:         h.score,
		})
	}
	return res
}

// suppressOverlaps drops every hit that overlaps a better hit by more than
// half the template size. Suppression is not chained: a hit only needs to
// lose to one neighbour, surviving or not. A neighbour only counts if its
// seed cleared min(score, seedFloor) of the hit it suppresses, which keeps
// the result at a higher threshold a subset of the result at a lower one.
// Survivors are returned in row-major order.
func suppressOverlaps(hits map[image.Point]hit, width, height int, seedFloor float64) []hit {
	all := make([]hit, 0, len(hits))
	for _, h := range hits {
		all = append(all, h)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].at.Y != all[j].at.Y {
			return all[i].at.Y < all[j].at.Y
		}
		return all[i].at.X < all[j].at.X
	})

	halfW, halfH := (width+1)/2, (height+1)/2
	var kept []hit
	for i, h := range all {
		need := math.Min(h.score, seedFloor)
		suppressed := false
		for j, o := range all {
			if i == j || o.seed < need {
				continue
			}
			if abs(h.at.X-o.at.X) < halfW && abs(h.at.Y-o.at.Y) < halfH && o.beats(h) {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, h)
		}
	}
	return kept
}
