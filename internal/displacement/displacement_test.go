package displacement

import (
	"math"
	"testing"

	"cell-tracker/internal/detect"
	"cell-tracker/internal/sequence"
	"cell-tracker/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(x, y float64) geometry.Point2D { return geometry.Point2D{X: x, Y: y} }

func samplesAt(points ...geometry.Point2D) []Sample {
	out := make([]Sample, len(points))
	for i, p := range points {
		out[i] = Sample{Frame: sequence.FrameKey{Frame: i}, Centroid: p, Found: true, Count: 1}
	}
	return out
}

func TestEstimateStraightThenTurn(t *testing.T) {
	recs := Estimator{RequireStableCount: true}.Estimate(samplesAt(pt(0, 0), pt(1, 0), pt(2, 0), pt(2, 1)))
	require.Len(t, recs, 4)

	assert.Nil(t, recs[0].Linear)
	for i := 1; i < 4; i++ {
		require.NotNil(t, recs[i].Linear, "step %d", i)
		assert.InDelta(t, 1, *recs[i].Linear, 1e-12)
	}

	assert.Nil(t, recs[0].Angular)
	assert.Nil(t, recs[1].Angular)
	require.NotNil(t, recs[2].Angular)
	assert.InDelta(t, 0, *recs[2].Angular, 1e-9)
	require.NotNil(t, recs[3].Angular)
	assert.InDelta(t, 90, *recs[3].Angular, 1e-9)
}

func TestTurnAngleSymmetry(t *testing.T) {
	vectors := [][2]geometry.Point2D{
		{pt(1, 0), pt(0, 1)},
		{pt(3, 4), pt(-2, 7)},
		{pt(-5, 1), pt(-5, 1)},
		{pt(1, 1), pt(-1, -1)},
		{pt(0.001, 2), pt(7, -3)},
	}
	for _, v := range vectors {
		base, ok := VectorAngle(v[0], v[1])
		require.True(t, ok)

		neg, ok := VectorAngle(v[0].Scale(-1), v[1].Scale(-1))
		require.True(t, ok)
		assert.InDelta(t, base, neg, 1e-9, "reversing both vectors")

		scaled, ok := VectorAngle(v[0].Scale(3.5), v[1].Scale(0.02))
		require.True(t, ok)
		assert.InDelta(t, base, scaled, 1e-9, "positive rescaling")
	}
}

func TestTurnAngleClampsRounding(t *testing.T) {
	// Nearly parallel vectors whose cosine rounds above 1.
	a, ok := VectorAngle(pt(1e8, 1), pt(1e8+1, 1))
	require.True(t, ok)
	assert.False(t, math.IsNaN(a))

	a, ok = VectorAngle(pt(1, 1), pt(-1, -1))
	require.True(t, ok)
	assert.InDelta(t, 180, a, 1e-9)
}

func TestTurnAngleZeroVector(t *testing.T) {
	_, ok := TurnAngle(pt(1, 1), pt(1, 1), pt(2, 2))
	assert.False(t, ok)

	recs := Estimator{}.Estimate(samplesAt(pt(0, 0), pt(0, 0), pt(3, 4)))
	require.NotNil(t, recs[1].Linear)
	assert.InDelta(t, 0, *recs[1].Linear, 0)
	assert.InDelta(t, 5, *recs[2].Linear, 1e-12)
	assert.Nil(t, recs[2].Angular, "stationary step has no direction")
}

func TestEstimateMissingFrameNullsDependentValues(t *testing.T) {
	s := samplesAt(pt(0, 0), pt(1, 0), pt(2, 0), pt(3, 0), pt(4, 0), pt(5, 0))
	s[2].Found = false

	recs := Estimator{RequireStableCount: true}.Estimate(s)
	assert.NotNil(t, recs[1].Linear)
	assert.Nil(t, recs[2].Linear)
	assert.Nil(t, recs[3].Linear)
	assert.NotNil(t, recs[4].Linear)
	assert.Nil(t, recs[2].Angular)
	assert.Nil(t, recs[3].Angular)
	assert.Nil(t, recs[4].Angular)
	require.NotNil(t, recs[5].Angular, "track recovers once two links exist again")
	assert.InDelta(t, 0, *recs[5].Angular, 1e-9)
}

func TestEstimateObjectCountMismatch(t *testing.T) {
	s := samplesAt(pt(0, 0), pt(1, 0), pt(2, 0))
	s[1].Count = 2

	strict := Estimator{RequireStableCount: true}.Estimate(s)
	assert.Nil(t, strict[1].Linear)
	assert.Nil(t, strict[2].Linear)
	assert.Nil(t, strict[2].Angular)

	loose := Estimator{}.Estimate(s)
	assert.NotNil(t, loose[2].Angular)
}

func TestEstimateShortSequences(t *testing.T) {
	assert.Empty(t, Estimator{}.Estimate(nil))

	one := Estimator{}.Estimate(samplesAt(pt(4, 4)))
	assert.Nil(t, one[0].Linear)

	two := Estimator{}.Estimate(samplesAt(pt(4, 4), pt(4, 6)))
	require.NotNil(t, two[1].Linear)
	assert.Nil(t, two[1].Angular)
}

func TestTrackerFollowsNearest(t *testing.T) {
	size := geometry.Size{Width: 100, Height: 100}
	frames := []sequence.FrameKey{{Frame: 0}, {Frame: 1}, {Frame: 2}, {Frame: 3}}
	results := []*detect.Result{
		{Size: size, Detections: []detect.Detection{
			{Object: 1, Area: 30, Centroid: pt(10.7, 10.2)},
			{Object: 2, Area: 30, Centroid: pt(52, 49)},
		}},
		{Size: size, Detections: []detect.Detection{
			{Object: 1, Area: 30, Centroid: pt(11, 10)},
			{Object: 2, Area: 30, Centroid: pt(70, 49)},
		}},
		nil, // unreadable frame
		{Size: size, Detections: []detect.Detection{
			{Object: 1, Area: 30, Centroid: pt(12, 10)},
			{Object: 2, Area: 30, Centroid: pt(55, 50)},
		}},
	}

	samples := Tracker{}.Track(frames, results)
	require.Len(t, samples, 4)

	assert.Equal(t, pt(52, 49), samples[0].Centroid, "first frame starts at image centre")
	assert.Equal(t, pt(70, 49), samples[1].Centroid, "then follows the previous centroid")
	assert.False(t, samples[2].Found)
	assert.Equal(t, pt(55, 50), samples[3].Centroid, "after a miss, back to the centre")
	assert.Equal(t, 2, samples[3].Count)
}

func TestTrackerTruncatesCentroids(t *testing.T) {
	res := &detect.Result{Size: geometry.Size{Width: 10, Height: 10},
		Detections: []detect.Detection{{Object: 1, Area: 20, Centroid: pt(4.9, 5.99)}}}
	samples := Tracker{}.Track([]sequence.FrameKey{{}}, []*detect.Result{res})
	assert.Equal(t, pt(4, 5), samples[0].Centroid)
}

func TestTrackerEmptyFrame(t *testing.T) {
	res := &detect.Result{Size: geometry.Size{Width: 10, Height: 10}}
	samples := Tracker{}.Track([]sequence.FrameKey{{}}, []*detect.Result{res})
	assert.False(t, samples[0].Found)
	assert.Equal(t, 0, samples[0].Count)
}

func TestMeanAbsAngleAndAggregate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	withAngles := []Record{{Angular: nil}, {Angular: f(30)}, {Angular: f(-90)}}
	noAngles := []Record{{Linear: f(2)}, {}}

	mean, ok := MeanAbsAngle(withAngles)
	require.True(t, ok)
	assert.InDelta(t, 60, mean, 1e-12)

	_, ok = MeanAbsAngle(noAngles)
	assert.False(t, ok)

	k1 := sequence.Key{Experiment: "e", Seq: 1}
	k2 := sequence.Key{Experiment: "e", Seq: 2}
	agg := Aggregate([]sequence.Key{k1, k2}, [][]Record{noAngles, withAngles})
	require.Len(t, agg, 1, "sequence without angles is excluded, not zero")
	assert.Equal(t, k2, agg[0].Key)
	assert.Equal(t, 2, agg[0].Angles)
}

func TestHeading(t *testing.T) {
	assert.InDelta(t, 0, Heading(pt(0, 0), pt(5, 0)), 1e-12)
	assert.InDelta(t, -90, Heading(pt(0, 0), pt(0, -5)), 1e-12) // up in image coordinates
	assert.InDelta(t, 180, Heading(pt(0, 0), pt(-5, 0)), 1e-12)
}

func TestRowAndNullable(t *testing.T) {
	lin := 1.5
	r := Record{
		Frame: sequence.FrameKey{
			Key:      sequence.Key{Experiment: "exp1", Species: "cr", PoolID: "p1", Seq: 3},
			Frame:    2,
			FileName: "cr_p1_seq3_f0to9_2.tif",
			Path:     "x/cr_p1_seq3_f0to9_2.tif",
		},
		Centroid: pt(64, 63),
		Found:    true,
		Linear:   &lin,
	}
	assert.Equal(t, []string{"exp1", "cr", "p1", "3", "cr_p1_seq3_f0to9_2.tif", "2", "64", "63",
		"x/cr_p1_seq3_f0to9_2.tif", "", "1.5"}, r.Row())
	assert.Len(t, Header, len(r.Row()))

	for _, s := range []string{"", "None", "(None, None)"} {
		v, err := ParseNullable(s)
		require.NoError(t, err)
		assert.Nil(t, v)
	}
	v, err := ParseNullable("12.25")
	require.NoError(t, err)
	assert.InDelta(t, 12.25, *v, 0)
	_, err = ParseNullable("abc")
	assert.Error(t, err)
}
