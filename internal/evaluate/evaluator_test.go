package evaluate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleus-sweep/internal/debug/timing"
	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/processing/regions"
)

type goldMap map[string]models.MaskAndCount

func (g goldMap) Get(id string) (models.MaskAndCount, error) {
	mc, ok := g[id]
	if !ok {
		return models.MaskAndCount{}, fmt.Errorf("%w: %s", models.ErrMissingGoldStandard, id)
	}
	return mc, nil
}

type cannedPipeline struct {
	opened atomic.Int32
	closed atomic.Int32

	segs    map[string]*models.Segmentation
	errs    map[string]error
	block   map[string]chan struct{}
	methods map[string]bool
}

func newCannedPipeline() *cannedPipeline {
	return &cannedPipeline{
		segs:  map[string]*models.Segmentation{},
		errs:  map[string]error{},
		block: map[string]chan struct{}{},
	}
}

func (p *cannedPipeline) NewSession() (Segmenter, error) {
	p.opened.Add(1)
	return &cannedSession{p: p}, nil
}

type cannedSession struct {
	p      *cannedPipeline
	closed sync.Once
}

func (s *cannedSession) Segment(_ context.Context, id, global, local string) (*models.Segmentation, error) {
	if s.p.methods != nil && !s.p.methods[global+"/"+local] {
		return nil, fmt.Errorf("%w: %s/%s", models.ErrUnsupportedMethod, global, local)
	}
	if ch, ok := s.p.block[id]; ok {
		<-ch
	}
	if err := s.p.errs[id]; err != nil {
		return nil, err
	}
	return s.p.segs[id], nil
}

func (s *cannedSession) Close() error {
	s.closed.Do(func() { s.p.closed.Add(1) })
	return nil
}

func pixel(x, y int) models.Region {
	return models.Region{Runs: []models.Run{{Y: y, X0: x, X1: x + 1}}, Area: 1}
}

func goldEntry(t *testing.T, w, h int, set models.RegionSet) models.MaskAndCount {
	t.Helper()
	mc, err := regions.ToMask(set, w, h)
	require.NoError(t, err)
	return mc
}

var key = models.ComboKey{Global: "Otsu", Local: "Bernsen"}

func TestEvaluateSinglePixelScenario(t *testing.T) {
	gold := goldMap{"a.png": goldEntry(t, 4, 4, models.RegionSet{pixel(1, 1)})}
	p := newCannedPipeline()
	p.segs["a.png"] = &models.Segmentation{ImageID: "a.png", Width: 4, Height: 4,
		Regions: models.RegionSet{pixel(1, 1), pixel(2, 2)}}

	ev := NewEvaluator([]string{"a.png"}, gold, p, regions.Rasterizer{}, time.Second, logger.NewNop())
	res, err := ev.Evaluate(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, res.Combo)

	assert.Equal(t, "Otsu-Bernsen", res.Combo.Name)
	assert.Equal(t, 15.0/16.0, res.Combo.Accuracy)
	assert.Equal(t, 0.5, res.Combo.JI)
	assert.Equal(t, 1.0, res.Combo.Difference)
	assert.Empty(t, res.Failures)
	assert.Equal(t, int32(1), p.opened.Load())
	assert.Equal(t, int32(1), p.closed.Load())
}

func TestEvaluateExcludesFailedImages(t *testing.T) {
	gold := goldMap{
		"a.png": goldEntry(t, 4, 4, models.RegionSet{pixel(0, 0)}),
		"b.png": goldEntry(t, 4, 4, models.RegionSet{pixel(0, 0)}),
		"c.png": goldEntry(t, 4, 4, models.RegionSet{pixel(3, 3)}),
		"e.png": goldEntry(t, 4, 4, nil),
	}
	p := newCannedPipeline()
	p.segs["a.png"] = &models.Segmentation{Width: 4, Height: 4, Regions: models.RegionSet{pixel(0, 0)}}
	p.segs["b.png"] = &models.Segmentation{Width: 5, Height: 4, Regions: models.RegionSet{pixel(0, 0)}}
	p.errs["c.png"] = fmt.Errorf("decode: %w", models.ErrLoad)
	p.segs["e.png"] = &models.Segmentation{Width: 4, Height: 4}

	ids := []string{"a.png", "b.png", "c.png", "d.png", "e.png"}
	ev := NewEvaluator(ids, gold, p, regions.Rasterizer{}, time.Second, logger.NewNop())
	res, err := ev.Evaluate(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Combo.Accuracy)
	assert.Equal(t, 1.0, res.Combo.JI)
	assert.Zero(t, res.Combo.Difference)
	require.Len(t, res.Scores, 1)

	kinds := map[string]string{}
	for _, f := range res.Failures {
		kinds[f.ImageID] = models.ErrorKind(f)
	}
	assert.Equal(t, map[string]string{
		"b.png": "DimensionMismatch",
		"c.png": "LoadError",
		"d.png": "MissingGoldStandard",
		"e.png": "EmptyUnion",
	}, kinds)
}

func TestEvaluateAllImagesFail(t *testing.T) {
	p := newCannedPipeline()
	ev := NewEvaluator([]string{"a.png", "b.png"}, goldMap{}, p, regions.Rasterizer{}, time.Second, logger.NewNop())
	res, err := ev.Evaluate(context.Background(), key)
	assert.ErrorIs(t, err, models.ErrNoScoredImages)
	require.NotNil(t, res)
	assert.Nil(t, res.Combo)
	assert.Len(t, res.Failures, 2)
}

func TestEvaluateEmptyCorpus(t *testing.T) {
	ev := NewEvaluator(nil, goldMap{}, newCannedPipeline(), regions.Rasterizer{}, time.Second, logger.NewNop())
	_, err := ev.Evaluate(context.Background(), key)
	assert.ErrorIs(t, err, models.ErrEmptyCorpus)
}

func TestEvaluateUnsupportedMethodFailsCombo(t *testing.T) {
	gold := goldMap{"a.png": goldEntry(t, 4, 4, models.RegionSet{pixel(1, 1)})}
	p := newCannedPipeline()
	p.methods = map[string]bool{"Otsu/Mean": true}

	ev := NewEvaluator([]string{"a.png", "b.png"}, gold, p, regions.Rasterizer{}, time.Second, logger.NewNop())
	res, err := ev.Evaluate(context.Background(), key)
	assert.ErrorIs(t, err, models.ErrUnsupportedMethod)
	assert.Nil(t, res.Combo)
	assert.Equal(t, p.opened.Load(), p.closed.Load())
}

func TestEvaluateTimeoutReplacesSession(t *testing.T) {
	gold := goldMap{
		"a.png": goldEntry(t, 4, 4, models.RegionSet{pixel(1, 1)}),
		"b.png": goldEntry(t, 4, 4, models.RegionSet{pixel(1, 1)}),
	}
	p := newCannedPipeline()
	release := make(chan struct{})
	p.block["a.png"] = release
	p.segs["a.png"] = &models.Segmentation{Width: 4, Height: 4, Regions: models.RegionSet{pixel(1, 1)}}
	p.segs["b.png"] = &models.Segmentation{Width: 4, Height: 4, Regions: models.RegionSet{pixel(1, 1)}}

	tt := timing.NewTracker()
	ev := NewEvaluator([]string{"a.png", "b.png"}, gold, p, regions.Rasterizer{}, 20*time.Millisecond, logger.NewNop())
	ev.SetTimingTracker(tt)
	res, err := ev.Evaluate(context.Background(), key)
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "a.png", res.Failures[0].ImageID)
	assert.ErrorIs(t, res.Failures[0], models.ErrTimeout)
	assert.Len(t, res.Scores, 1)
	assert.Equal(t, int32(2), p.opened.Load(), "timed out session must be replaced")
	assert.Len(t, tt.GetTimings("segment"), 1)

	close(release)
	assert.Eventually(t, func() bool { return p.closed.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev := NewEvaluator([]string{"a.png"}, goldMap{}, newCannedPipeline(), regions.Rasterizer{}, time.Second, logger.NewNop())
	_, err := ev.Evaluate(ctx, key)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingSink struct {
	mu    sync.Mutex
	saved []string
}

func (r *recordingSink) SaveMask(key models.ComboKey, id string, _ *models.Mask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, key.Name()+"/"+id)
	return nil
}

func TestEvaluateDeterministicAndArtifacts(t *testing.T) {
	gold := goldMap{}
	p := newCannedPipeline()
	ids := []string{"a.png", "b.png", "c.png"}
	for i, id := range ids {
		gold[id] = goldEntry(t, 6, 6, models.RegionSet{pixel(i, i), pixel(5, 0)})
		p.segs[id] = &models.Segmentation{Width: 6, Height: 6, Regions: models.RegionSet{pixel(i, i), pixel(i+1, i), pixel(0, 5)}}
	}
	sink := &recordingSink{}

	ev := NewEvaluator(ids, gold, p, regions.Rasterizer{}, time.Second, logger.NewNop())
	ev.SetArtifactSink(sink)
	first, err := ev.Evaluate(context.Background(), key)
	require.NoError(t, err)
	second, err := ev.Evaluate(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, *first.Combo, *second.Combo)
	assert.Equal(t, []string{"Otsu-Bernsen/a.png", "Otsu-Bernsen/b.png", "Otsu-Bernsen/c.png"}, sink.saved[:3])
}
