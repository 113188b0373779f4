package cv

import "testing"

func lineCandidates(n int) []candidate {
	c := make([]candidate, n)
	for i := range c {
		c[i] = candidate{f: Feature{X: i, Y: 0}, score: float32(n - i)}
	}
	return c
}

func TestSelectScatteredFeaturesKeepsDistance(t *testing.T) {
	got := selectScatteredFeatures(lineCandidates(20), 4, 5)
	want := []int{0, 5, 10, 15}
	if len(got) != len(want) {
		t.Fatalf("selected %d features, want %d", len(got), len(want))
	}
	for i, f := range got {
		if f.X != want[i] {
			t.Errorf("feature %d at x=%d, want %d", i, f.X, want[i])
		}
	}
}

func TestSelectScatteredFeaturesRelaxesDistance(t *testing.T) {
	got := selectScatteredFeatures(lineCandidates(6), 6, 10)
	if len(got) != 6 {
		t.Fatalf("selected %d features, want all 6", len(got))
	}
	seen := map[int]bool{}
	for _, f := range got {
		if seen[f.X] {
			t.Fatalf("feature at x=%d selected twice", f.X)
		}
		seen[f.X] = true
	}
}

func TestSelectScatteredFeaturesEdgeCases(t *testing.T) {
	if got := selectScatteredFeatures(nil, 10, 3); len(got) != 0 {
		t.Errorf("no candidates gave %d features", len(got))
	}
	if got := selectScatteredFeatures(lineCandidates(3), 0, 3); len(got) != 0 {
		t.Errorf("zero quota gave %d features", len(got))
	}
	if got := selectScatteredFeatures(lineCandidates(3), 10, 1); len(got) != 3 {
		t.Errorf("quota above candidates gave %d features, want 3", len(got))
	}
}

func TestSortCandidatesIsStable(t *testing.T) {
	c := []candidate{
		{f: Feature{X: 0}, score: 1},
		{f: Feature{X: 1}, score: 3},
		{f: Feature{X: 2}, score: 1},
		{f: Feature{X: 3}, score: 3},
	}
	sortCandidates(c)
	order := []int{1, 3, 0, 2}
	for i, want := range order {
		if c[i].f.X != want {
			t.Fatalf("position %d holds x=%d, want %d", i, c[i].f.X, want)
		}
	}
}
