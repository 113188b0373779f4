package cv

// spread ORs each code over the forward T x T window [x, x+T) x [y, y+T).
// A template feature at offset f then scores for any live position p whose
// true alignment lies within T-1 pixels right of or below p.
func spread(src CodeMap, t int) CodeMap {
	w, h := src.Width, src.Height
	if t <= 1 {
		out := newCodeMap(w, h)
		copy(out.Pix, src.Pix)
		return out
	}

	horiz := newCodeMap(w, h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*w : (y+1)*w]
		dst := horiz.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var v uint8
			end := x + t
			if end > w {
				end = w
			}
			for k := x; k < end; k++ {
				v |= row[k]
			}
			dst[x] = v
		}
	}

	out := newCodeMap(w, h)
	for y := 0; y < h; y++ {
		end := y + t
		if end > h {
			end = h
		}
		dst := out.Pix[y*w : (y+1)*w]
		for k := y; k < end; k++ {
			row := horiz.Pix[k*w : (k+1)*w]
			for x := 0; x < w; x++ {
				dst[x] |= row[x]
			}
		}
	}
	return out
}

// linearMemory stores, per label and per sub-cell offset (dy, dx) of a T x T
// grid, the binary response of the spread map sampled on that grid. Scoring
// every grid position for one feature then becomes a contiguous slice add.
type linearMemory struct {
	t            int
	gridW, gridH int
	mem          [NumLabels][][]uint8
}

func linearize(sp CodeMap, t int) *linearMemory {
	lm := &linearMemory{
		t:     t,
		gridW: sp.Width / t,
		gridH: sp.Height / t,
	}
	n := lm.gridW * lm.gridH
	for l := 0; l < NumLabels; l++ {
		bit := uint8(1) << uint(l)
		lm.mem[l] = make([][]uint8, t*t)
		for dy := 0; dy < t; dy++ {
			for dx := 0; dx < t; dx++ {
				memory := make([]uint8, n)
				i := 0
				for gy := 0; gy < lm.gridH; gy++ {
					row := (gy*t + dy) * sp.Width
					for gx := 0; gx < lm.gridW; gx++ {
						if sp.Pix[row+gx*t+dx]&bit != 0 {
							memory[i] = 1
						}
						i++
					}
				}
				lm.mem[l][dy*t+dx] = memory
			}
		}
	}
	return lm
}

// accessFor returns the memory a feature reads and the linear offset of its
// grid cell relative to the template origin
func (lm *linearMemory) accessFor(f Feature) ([]uint8, int) {
	memory := lm.mem[f.Label][(f.Y%lm.t)*lm.t+f.X%lm.t]
	start := (f.Y/lm.t)*lm.gridW + f.X/lm.t
	return memory, start
}
