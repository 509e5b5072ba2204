package vdbbench_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vdbbench "github.com/Uyyuu/VectorDBBench"
)

func TestParseMetricType(t *testing.T) {
	cases := []struct {
		in   string
		want vdbbench.MetricType
	}{
		{"", vdbbench.Cosine},
		{"cosine", vdbbench.Cosine},
		{"COSINE", vdbbench.Cosine},
		{"l2", vdbbench.L2},
		{"Euclidean", vdbbench.L2},
		{"IP", vdbbench.IP},
		{"dot", vdbbench.IP},
	}
	for _, tc := range cases {
		got, err := vdbbench.ParseMetricType(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := vdbbench.ParseMetricType("hamming")
	require.Error(t, err)
}

func TestDistanceL2(t *testing.T) {
	d := vdbbench.Distance(vdbbench.L2, []float32{0, 0}, []float32{3, 4})
	assert.InDelta(t, 25.0, float64(d), 1e-6)
}

func TestDistanceIPIsNegatedDot(t *testing.T) {
	d := vdbbench.Distance(vdbbench.IP, []float32{1, 2}, []float32{3, 4})
	assert.InDelta(t, -11.0, float64(d), 1e-6)
}

func TestDistanceCosine(t *testing.T) {
	same := vdbbench.Distance(vdbbench.Cosine, []float32{0, 0, 0, 1}, []float32{0, 0, 0, 1})
	assert.InDelta(t, 0.0, float64(same), 1e-6)

	orthogonal := vdbbench.Distance(vdbbench.Cosine, []float32{0, 0, 0, 1}, []float32{0, 0, 1, 0})
	assert.InDelta(t, 1.0, float64(orthogonal), 1e-6)
}

func TestGroundTruth(t *testing.T) {
	records := []vdbbench.Record{
		{ID: 1, Vector: []float32{0, 0, 0, 1}},
		{ID: 2, Vector: []float32{0, 0, 1, 0}},
	}
	got := vdbbench.GroundTruth(records, []float32{0, 0, 0, 1}, 1, vdbbench.Cosine)
	assert.Equal(t, []int32{1}, got)

	// k larger than the record count returns everything, nearest first.
	all := vdbbench.GroundTruth(records, []float32{0, 0, 0, 1}, 10, vdbbench.Cosine)
	assert.Equal(t, []int32{1, 2}, all)
}

func TestRecall(t *testing.T) {
	assert.Equal(t, 1.0, vdbbench.Recall([]int32{1, 2, 3}, []int32{1, 2, 3}))
	assert.Equal(t, 0.5, vdbbench.Recall([]int32{1, 9}, []int32{1, 2}))
	assert.Equal(t, 0.0, vdbbench.Recall([]int32{8, 9}, []int32{1, 2}))
	assert.Equal(t, 1.0, vdbbench.Recall(nil, nil))
}
