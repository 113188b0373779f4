package cv

import "sort"

// Feature is one sparse template location with its quantized label.
// X and Y are relative to the template's bounding box once the template is built.
type Feature struct {
	X, Y     int
	Label    uint8
	Modality int
	// Response is the modality's raw strength at the feature (squared
	// gradient magnitude for color, 0 where a modality has none).
	Response float32
}

// bit is the code bit this feature must find in the live frame
func (f Feature) bit() uint8 {
	return 1 << f.Label
}

type candidate struct {
	f     Feature
	score float32
}

// sortCandidates orders by descending score, keeping scan order on ties
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}

// selectScatteredFeatures greedily takes the strongest candidates that keep at
// least distance pixels from everything already chosen. When a full pass cannot
// fill the quota the distance is relaxed by one pixel and the scan restarts.
func selectScatteredFeatures(candidates []candidate, numFeatures int, distance float32) []Feature {
	want := numFeatures
	if len(candidates) < want {
		want = len(candidates)
	}
	if want <= 0 {
		return nil
	}

	features := make([]Feature, 0, want)
	taken := make([]bool, len(candidates))
	for len(features) < want {
		distSq := distance * distance
		if distance <= 0 {
			distSq = 0
		}
		for i, c := range candidates {
			if taken[i] {
				continue
			}
			keep := true
			for _, f := range features {
				dx := float32(c.f.X - f.X)
				dy := float32(c.f.Y - f.Y)
				if dx*dx+dy*dy < distSq {
					keep = false
					break
				}
			}
			if keep {
				features = append(features, c.f)
				taken[i] = true
				if len(features) == want {
					break
				}
			}
		}
		distance -= 1
	}
	return features
}
