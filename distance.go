package vdbbench

import (
	"math"
	"sort"
)

// Distance computes the distance between two equal-length vectors under the
// given metric. Lower is closer for every metric: inner product is negated so
// that the most similar vector has the smallest distance, matching the
// ordering a distance-sorted SQL query produces.
func Distance(metric MetricType, a, b []float32) float32 {
	switch metric {
	case L2:
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum
	case IP:
		var dot float32
		for i := range a {
			dot += a[i] * b[i]
		}
		return -dot
	default: // Cosine
		var dot, na, nb float32
		for i := range a {
			dot += a[i] * b[i]
			na += a[i] * a[i]
			nb += b[i] * b[i]
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
	}
}

// GroundTruth returns the ids of the k records nearest to query under metric,
// computed by exact scan. It is the reference answer recall is scored against.
func GroundTruth(records []Record, query []float32, k int, metric MetricType) []int32 {
	type scored struct {
		id   int32
		dist float32
	}
	scores := make([]scored, 0, len(records))
	for _, r := range records {
		scores = append(scores, scored{id: r.ID, dist: Distance(metric, query, r.Vector)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })
	if k > len(scores) {
		k = len(scores)
	}
	ids := make([]int32, k)
	for i := range ids {
		ids[i] = scores[i].id
	}
	return ids
}

// Recall returns the fraction of want ids that appear in got. An empty want
// yields 1.
func Recall(got, want []int32) float64 {
	if len(want) == 0 {
		return 1
	}
	set := make(map[int32]struct{}, len(want))
	for _, id := range want {
		set[id] = struct{}{}
	}
	var hits int
	for _, id := range got {
		if _, ok := set[id]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}
