package cv

import "image"

// gridScores is the response of one template at every valid stride-T
// position of the top pyramid level.
type gridScores struct {
	cols, rows int
	t          int
	counts     []uint16
}

// at returns the pixel position of grid cell i
func (g gridScores) at(i int) image.Point {
	return image.Point{X: (i % g.cols) * g.t, Y: (i / g.cols) * g.t}
}

// gridSimilarity counts, for every grid position, how many template features
// find their label in the linearized spread maps. Only positions where the
// whole template lies inside the linearized area are scored.
func gridSimilarity(level *LevelSignature, tl TemplateLevel) (gridScores, bool) {
	t := level.T
	g := gridScores{t: t}
	if len(level.memories) == 0 {
		return g, false
	}
	lm0 := level.memories[0]
	spanW := lm0.gridW*t - 1 - tl.Width
	spanH := lm0.gridH*t - 1 - tl.Height
	if spanW < 0 || spanH < 0 {
		return g, false
	}
	g.cols = spanW/t + 1
	g.rows = spanH/t + 1
	g.counts = make([]uint16, g.cols*g.rows)

	for _, f := range tl.Features {
		lm := level.memories[f.Modality]
		memory, start := lm.accessFor(f)
		for gy := 0; gy < g.rows; gy++ {
			src := memory[start+gy*lm.gridW : start+gy*lm.gridW+g.cols]
			dst := g.counts[gy*g.cols : (gy+1)*g.cols]
			for gx, v := range src {
				dst[gx] += uint16(v)
			}
		}
	}
	return g, true
}

// stridedSimilarity scores a level without linear memories on the same
// stride-T grid, straight from the spread maps
func stridedSimilarity(level *LevelSignature, tl TemplateLevel) (gridScores, bool) {
	t := level.T
	g := gridScores{t: t}
	spanW := level.Width - 1 - tl.Width
	spanH := level.Height - 1 - tl.Height
	if spanW < 0 || spanH < 0 {
		return g, false
	}
	g.cols = spanW/t + 1
	g.rows = spanH/t + 1
	g.counts = make([]uint16, g.cols*g.rows)
	for i := range g.counts {
		g.counts[i] = uint16(similarityAt(level, tl, g.at(i)).count)
	}
	return g, true
}

// levelFits reports whether the template has at least one position at this level
func levelFits(level *LevelSignature, tl TemplateLevel) bool {
	return tl.Width < level.Width && tl.Height < level.Height
}

// similarity is the agreement of a template with the frame at one position
type similarity struct {
	count     int     // features whose label is in the spread codes
	exact     int     // features whose label is in the unspread codes
	deviation float64 // summed response difference over features with a response
}

// better orders positions inside one search window
func (s similarity) better(o similarity) bool {
	switch {
	case s.count != o.count:
		return s.count > o.count
	case s.exact != o.exact:
		return s.exact > o.exact
	default:
		return s.deviation < o.deviation
	}
}

func similarityAt(level *LevelSignature, tl TemplateLevel, p image.Point) similarity {
	var sim similarity
	w := level.Width
	for _, f := range tl.Features {
		i := (p.Y+f.Y)*w + p.X + f.X
		bit := f.bit()
		if level.Spread[f.Modality].Pix[i]&bit != 0 {
			sim.count++
		}
		if level.Quantized[f.Modality].Pix[i]&bit != 0 {
			sim.exact++
		}
		if response := level.Response[f.Modality]; response != nil {
			d := float64(response[i]) - float64(f.Response)
			if d < 0 {
				d = -d
			}
			sim.deviation += d
		}
	}
	return sim
}

// refined is the best position found inside a search window
type refined struct {
	at image.Point
	similarity
}

// refineWindow scans the window [lo, hi] (inclusive, clamped to the level) and
// keeps the best position by count, exact count and deviation; remaining ties
// go to the first in row-major order.
func refineWindow(level *LevelSignature, tl TemplateLevel, lo, hi image.Point) (refined, bool) {
	maxX := level.Width - 1 - tl.Width
	maxY := level.Height - 1 - tl.Height
	lo.X, lo.Y = max(lo.X, 0), max(lo.Y, 0)
	hi.X, hi.Y = min(hi.X, maxX), min(hi.Y, maxY)
	if lo.X > hi.X || lo.Y > hi.Y {
		return refined{}, false
	}

	var best refined
	found := false
	for y := lo.Y; y <= hi.Y; y++ {
		for x := lo.X; x <= hi.X; x++ {
			p := image.Point{X: x, Y: y}
			sim := similarityAt(level, tl, p)
			if !found || sim.better(best.similarity) {
				best = refined{at: p, similarity: sim}
				found = true
			}
		}
	}
	return best, true
}

// percent converts a feature count into a 0-100 score
func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(count) / float64(total)
}
