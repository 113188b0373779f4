package cv

import "testing"

func TestSpreadCoversForwardWindow(t *testing.T) {
	src := newCodeMap(8, 8)
	src.Pix[4*8+5] = 1 << 2
	src.Pix[0] = 1 << 6

	out := spread(src, 3)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := out.At(x, y)
			inWindow := x >= 3 && x <= 5 && y >= 2 && y <= 4
			if inWindow != (v&(1<<2) != 0) {
				t.Errorf("(%d,%d) = %08b, window membership %v", x, y, v, inWindow)
			}
		}
	}
	if out.At(0, 0) != 1<<6 {
		t.Errorf("origin code = %08b, want only bit 6", out.At(0, 0))
	}
}

func TestSpreadWidthOneCopies(t *testing.T) {
	src := newCodeMap(3, 2)
	src.Pix[4] = 8
	out := spread(src, 1)
	out.Pix[4] = 0
	if src.Pix[4] != 8 {
		t.Fatal("spread with T=1 must not alias its input")
	}
}

func TestLinearMemoryMatchesSpreadSampling(t *testing.T) {
	src := newCodeMap(12, 9)
	for i := range src.Pix {
		if i%5 == 0 {
			src.Pix[i] = 1 << uint(i%NumLabels)
		}
	}
	const T = 3
	sp := spread(src, T)
	lm := linearize(sp, T)
	if lm.gridW != 4 || lm.gridH != 3 {
		t.Fatalf("grid = %dx%d, want 4x3", lm.gridW, lm.gridH)
	}

	f := Feature{X: 4, Y: 2, Label: 3}
	memory, start := lm.accessFor(f)
	for gy := 0; gy+f.Y/T < lm.gridH; gy++ {
		for gx := 0; gx+f.X/T < lm.gridW; gx++ {
			x, y := gx*T+f.X, gy*T+f.Y
			want := sp.At(x, y)&f.bit() != 0
			got := memory[start+gy*lm.gridW+gx] == 1
			if got != want {
				t.Errorf("grid (%d,%d): memory %v, spread %v", gx, gy, got, want)
			}
		}
	}
}
