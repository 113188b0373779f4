package cv_test

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/linemod/internal/cv"
	"jordanella.com/linemod/internal/testutil"
)

const sceneSize = 96

var objectBox = image.Rect(16, 16, 80, 80)

func texturedStore(t *testing.T, cfg *cv.MatchConfig) (*cv.Store, cv.Frame) {
	t.Helper()
	store, err := cv.NewStore(cfg)
	require.NoError(t, err)

	scene := testutil.TexturedScene(7, sceneSize, sceneSize, 6)
	_, err = store.AddTemplate(scene, testutil.RectMask(sceneSize, sceneSize, objectBox), "box")
	require.NoError(t, err)
	return store, scene
}

func TestMatchFindsTemplateInItsOwnScene(t *testing.T) {
	store, scene := texturedStore(t, nil)
	tmpl, ok := store.Template("box", 0)
	require.True(t, ok)
	require.False(t, tmpl.Empty())

	matches, err := cv.NewMatcher(store).Match(scene, 100)
	require.NoError(t, err)

	var exact *cv.Match
	for i := range matches {
		if matches[i].Location == tmpl.Offset {
			exact = &matches[i]
		}
	}
	require.NotNil(t, exact, "no match at %v in %+v", tmpl.Offset, matches)
	assert.Equal(t, "box", exact.ObjectID)
	assert.Equal(t, 0, exact.TemplateIndex)
	assert.Equal(t, 100.0, exact.Score)

	// nothing else survives inside the object's footprint
	for _, m := range matches {
		if m.Location == tmpl.Offset {
			continue
		}
		dx, dy := m.Location.X-tmpl.Offset.X, m.Location.Y-tmpl.Offset.Y
		assert.False(t, abs(dx) < (tmpl.Width+1)/2 && abs(dy) < (tmpl.Height+1)/2,
			"overlapping match %+v survived", m)
	}
}

func TestMatchScoresStayInRange(t *testing.T) {
	store, scene := texturedStore(t, nil)
	matches, err := cv.NewMatcher(store).Match(scene, 0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 100.0)
	}
}

func TestHigherThresholdGivesSubset(t *testing.T) {
	store, scene := texturedStore(t, nil)
	matcher := cv.NewMatcher(store)

	var previous []cv.Match
	for _, threshold := range []float64{100, 90, 75, 50} {
		matches, err := matcher.Match(scene, threshold)
		require.NoError(t, err)
		for _, m := range matches {
			assert.GreaterOrEqual(t, m.Score, threshold)
		}
		for _, p := range previous {
			assert.Contains(t, matches, p, "match at a stricter threshold lost at %v", threshold)
		}
		previous = matches
	}
}

func TestMatchIsDeterministicAcrossWorkers(t *testing.T) {
	seq, scene := texturedStore(t, nil)
	par, _ := texturedStore(t, cv.NewMatchConfig(cv.WithWorkers(4)))

	// a second identity so the pool has more than one template to hand out
	other := testutil.TexturedScene(11, sceneSize, sceneSize, 8)
	mask := testutil.RectMask(sceneSize, sceneSize, image.Rect(8, 8, 72, 72))
	for _, s := range []*cv.Store{seq, par} {
		_, err := s.AddTemplate(other, mask, "other")
		require.NoError(t, err)
	}

	want, err := cv.NewMatcher(seq).Match(scene, 60)
	require.NoError(t, err)
	again, err := cv.NewMatcher(seq).Match(scene, 60)
	require.NoError(t, err)
	got, err := cv.NewMatcher(par).Match(scene, 60)
	require.NoError(t, err)

	if diff := cmp.Diff(want, again); diff != "" {
		t.Errorf("repeated match differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parallel match differs (-sequential +parallel):\n%s", diff)
	}
}

func TestMatchOrderFollowsStore(t *testing.T) {
	store, err := cv.NewStore(nil)
	require.NoError(t, err)
	scene := testutil.TexturedScene(7, sceneSize, sceneSize, 6)
	mask := testutil.RectMask(sceneSize, sceneSize, objectBox)
	for _, id := range []string{"zeta", "alpha", "zeta"} {
		_, err := store.AddTemplate(scene, mask, id)
		require.NoError(t, err)
	}

	matches, err := cv.NewMatcher(store).Match(scene, 100)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	rank := map[string]int{"zeta": 0, "alpha": 1}
	for i := 1; i < len(matches); i++ {
		a, b := matches[i-1], matches[i]
		ka := [4]int{rank[a.ObjectID], a.TemplateIndex, a.Location.Y, a.Location.X}
		kb := [4]int{rank[b.ObjectID], b.TemplateIndex, b.Location.Y, b.Location.X}
		assert.True(t, lessOrEqual(ka, kb), "%+v listed before %+v", a, b)
	}
}

func lessOrEqual(a, b [4]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return true
}

func TestMatchEmptyStore(t *testing.T) {
	store, err := cv.NewStore(nil)
	require.NoError(t, err)

	matches, stats, err := cv.NewMatcher(store).MatchWithStats(cv.NewFrame(64, 64), 0)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
	assert.Zero(t, stats.TemplatesEvaluated)
}

func TestMatchSkipsTemplatesThatCannotMatch(t *testing.T) {
	store, scene := texturedStore(t, nil)
	_, err := store.AddTemplate(scene, testutil.RectMask(sceneSize, sceneSize, image.Rectangle{}), "ghost")
	require.NoError(t, err)

	// the scene cropped smaller than the template footprint
	small := cv.Frame{
		Color: scene.Color.SubImage(image.Rect(0, 0, 48, 48)).(*image.RGBA),
		Depth: scene.Depth.SubImage(image.Rect(0, 0, 48, 48)).(*image.Gray16),
	}
	matches, stats, err := cv.NewMatcher(store).MatchWithStats(small, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, 2, stats.TemplatesSkipped)

	matches, stats, err = cv.NewMatcher(store).MatchWithStats(scene, 0)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "ghost", m.ObjectID, "a template without features matched")
	}
	assert.Equal(t, 1, stats.TemplatesEvaluated)
	assert.Equal(t, 1, stats.TemplatesSkipped)
}

func TestMatchRejectsBadInput(t *testing.T) {
	store, scene := texturedStore(t, nil)
	matcher := cv.NewMatcher(store)

	for _, threshold := range []float64{-0.1, 100.1, math.NaN()} {
		_, err := matcher.Match(scene, threshold)
		assert.True(t, errors.Is(err, cv.ErrInvalidThreshold), "threshold %v: %v", threshold, err)
	}

	mismatched := cv.Frame{Color: scene.Color, Depth: image.NewGray16(image.Rect(0, 0, 10, 10))}
	_, err := matcher.Match(mismatched, 50)
	assert.True(t, errors.Is(err, cv.ErrDimensionMismatch), "got %v", err)
}

func TestMatchFindsTranslatedCopy(t *testing.T) {
	store, scene := texturedStore(t, nil)
	tmpl, ok := store.Template("box", 0)
	require.True(t, ok)

	tests := []struct {
		name  string
		shift image.Point
	}{
		{"odd both", image.Pt(13, 9)},
		{"odd x", image.Pt(5, 14)},
		{"even both", image.Pt(10, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := testutil.Embed(cv.NewFrame(140, 140), scene, tt.shift)
			want := tmpl.Offset.Add(tt.shift)

			matches, err := cv.NewMatcher(store).Match(frame, 100)
			require.NoError(t, err)

			var found *cv.Match
			for i := range matches {
				if matches[i].Location == want {
					found = &matches[i]
				}
			}
			require.NotNil(t, found, "no match at %v in %+v", want, matches)
			assert.Equal(t, 100.0, found.Score)
		})
	}
}

func TestMatchSeedsBelowEmptyCoarseLevel(t *testing.T) {
	store, scene := texturedStore(t, nil)
	tmpl, ok := store.Template("box", 0)
	require.True(t, ok)

	// a small object can lose every feature once halved
	tmpl.Levels[1].Features = nil
	require.False(t, tmpl.Empty())
	require.Equal(t, 0, tmpl.SeedLevel())

	matches, stats, err := cv.NewMatcher(store).MatchWithStats(scene, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TemplatesEvaluated)
	assert.Contains(t, matches, cv.Match{ObjectID: "box", TemplateIndex: 0, Location: tmpl.Offset, Score: 100})
}

func TestStoreKeepsItsOwnConfig(t *testing.T) {
	cfg := cv.DefaultMatchConfig()
	store, err := cv.NewStore(cfg)
	require.NoError(t, err)
	scene := testutil.TexturedScene(7, sceneSize, sceneSize, 6)
	_, err = store.AddTemplate(scene, testutil.RectMask(sceneSize, sceneSize, objectBox), "box")
	require.NoError(t, err)

	cfg.SpreadT[0] = 2
	cfg.SpreadT = append(cfg.SpreadT, 8)
	assert.Equal(t, []int{5, 8}, store.Config().SpreadT)

	matches, stats, err := cv.NewMatcher(store).MatchWithStats(scene, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TemplatesSkipped)
	assert.NotEmpty(t, matches)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
