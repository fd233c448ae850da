package agent

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelia-vision/babelia-go/internal/analyzer"
	"github.com/babelia-vision/babelia-go/internal/babelia"
	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/datastore"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"github.com/babelia-vision/babelia-go/internal/notification"
	"github.com/babelia-vision/babelia-go/internal/sampler"
)

// testSettings returns settings with zero backoffs so loop tests run fast.
func testSettings(t *testing.T, maxImages int) *conf.Settings {
	t.Helper()
	return &conf.Settings{
		Babelia: conf.BabeliaSettings{
			BaseURL:  "https://babelia.example.org",
			Sampling: conf.SamplingRandom,
		},
		Analyzer: conf.AnalyzerSettings{Threshold: 0.75},
		Search: conf.SearchSettings{
			MaxImages:        maxImages,
			ProgressInterval: 100,
			FetchRetryDelay:  0,
			ErrorBackoff:     0,
		},
		Output: conf.OutputSettings{ImageDir: t.TempDir()},
	}
}

func testSample() *babelia.ImageSample {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return &babelia.ImageSample{
		Address: sampler.Address{
			LocationKey: strings.Repeat("a", sampler.LocationKeyLength),
			Wall:        sampler.WallNorth,
			Shelf:       2,
			Volume:      7,
			Page:        123,
		},
		Image:     img,
		SourceURL: "https://babelia.example.org/imagebrowse.cgi?test",
		FetchedAt: time.Now(),
	}
}

func significantResult() *analyzer.SignificanceResult {
	return &analyzer.SignificanceResult{
		Score:         0.91,
		IsSignificant: true,
		Reason:        "a detailed technical diagram",
		Noise:         analyzer.NoiseAssessment{Entropy: 0.4, EdgeDensity: 0.3, NoiseScore: 0.28},
		Semantic: &analyzer.SemanticAssessment{
			Scores:        map[string]float32{"a detailed technical diagram": 0.9},
			TopMatches:    []analyzer.ConceptScore{{Concept: "a detailed technical diagram", Score: 0.9}},
			TopConcept:    "a detailed technical diagram",
			SemanticScore: 0.85,
		},
	}
}

func insignificantResult() *analyzer.SignificanceResult {
	return &analyzer.SignificanceResult{
		Score:         0.31,
		IsSignificant: false,
		Reason:        analyzer.ReasonBelowThreshold,
		Noise:         analyzer.NoiseAssessment{Entropy: 0.6, EdgeDensity: 0.4, NoiseScore: 0.36},
		Semantic: &analyzer.SemanticAssessment{
			Scores:     map[string]float32{"a photograph of a real object": 0.1},
			TopMatches: []analyzer.ConceptScore{{Concept: "a photograph of a real object", Score: 0.1}},
			TopConcept: "a photograph of a real object",
		},
	}
}

type stubSource struct {
	calls int
	fetch func(call int) (*babelia.ImageSample, error)
}

func (s *stubSource) Fetch(_ context.Context) (*babelia.ImageSample, error) {
	s.calls++
	return s.fetch(s.calls)
}

type stubScorer struct {
	calls   int
	analyze func(call int) (*analyzer.SignificanceResult, error)
}

func (s *stubScorer) Analyze(_ image.Image) (*analyzer.SignificanceResult, error) {
	s.calls++
	return s.analyze(s.calls)
}

type memStore struct {
	saved   []*datastore.Discovery
	saveErr error
}

func (m *memStore) Open() error  { return nil }
func (m *memStore) Close() error { return nil }
func (m *memStore) Save(d *datastore.Discovery) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, d)
	return nil
}
func (m *memStore) Count() (int64, error) { return int64(len(m.saved)), nil }
func (m *memStore) Top(n int) ([]datastore.Discovery, error) {
	out := make([]datastore.Discovery, 0, n)
	for i, d := range m.saved {
		if i >= n {
			break
		}
		out = append(out, *d)
	}
	return out, nil
}
func (m *memStore) Get(string, string, int, int, int) (*datastore.Discovery, error) {
	return nil, errors.Newf("not found").Category(errors.CategoryNotFound).Build()
}

type stubAlerter struct {
	alerts  []*notification.AlertData
	tests   int
	sendErr error
}

func (s *stubAlerter) SendAlert(_ context.Context, data *notification.AlertData) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.alerts = append(s.alerts, data)
	return nil
}

func (s *stubAlerter) SendTest(_ context.Context) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.tests++
	return nil
}

type stubPublisher struct {
	published []any
	pubErr    error
}

func (s *stubPublisher) Connect(_ context.Context) error { return nil }
func (s *stubPublisher) Publish(_ context.Context, payload any) error {
	if s.pubErr != nil {
		return s.pubErr
	}
	s.published = append(s.published, payload)
	return nil
}
func (s *stubPublisher) IsConnected() bool { return true }
func (s *stubPublisher) Disconnect()       {}

func TestRunStopsAtImageCap(t *testing.T) {
	t.Parallel()

	source := &stubSource{fetch: func(int) (*babelia.ImageSample, error) {
		return testSample(), nil
	}}
	scorer := &stubScorer{analyze: func(int) (*analyzer.SignificanceResult, error) {
		return insignificantResult(), nil
	}}
	a := New(testSettings(t, 5), source, scorer, &memStore{}, nil, nil, nil)

	require.NoError(t, a.Run(context.Background()))

	stats := a.Statistics()
	assert.Equal(t, int64(5), stats.ImagesAnalyzed)
	assert.Equal(t, int64(0), stats.Discoveries)
	assert.Equal(t, int64(0), stats.Errors)
	assert.Equal(t, 5, source.calls)
	assert.Equal(t, StateStopped, a.State())
	assert.NotEmpty(t, stats.RunID)
}

func TestRunRetriesFailedFetchesWithoutCounting(t *testing.T) {
	t.Parallel()

	// every odd call fails; failed fetches must not count as analyzed
	source := &stubSource{fetch: func(call int) (*babelia.ImageSample, error) {
		if call%2 == 1 {
			return nil, errors.Newf("server returned 503").
				Category(errors.CategoryImageFetch).Build()
		}
		return testSample(), nil
	}}
	scorer := &stubScorer{analyze: func(int) (*analyzer.SignificanceResult, error) {
		return insignificantResult(), nil
	}}
	a := New(testSettings(t, 3), source, scorer, &memStore{}, nil, nil, nil)

	require.NoError(t, a.Run(context.Background()))

	stats := a.Statistics()
	assert.Equal(t, int64(3), stats.ImagesAnalyzed)
	assert.Equal(t, int64(0), stats.Errors)
	assert.Equal(t, 6, source.calls)
}

func TestRunCountsAnalysisErrors(t *testing.T) {
	t.Parallel()

	source := &stubSource{fetch: func(int) (*babelia.ImageSample, error) {
		return testSample(), nil
	}}
	scorer := &stubScorer{analyze: func(int) (*analyzer.SignificanceResult, error) {
		return nil, errors.Newf("inference failed").
			Category(errors.CategoryAnalysis).Build()
	}}
	a := New(testSettings(t, 3), source, scorer, &memStore{}, nil, nil, nil)

	require.NoError(t, a.Run(context.Background()))

	stats := a.Statistics()
	assert.Equal(t, int64(3), stats.ImagesAnalyzed)
	assert.Equal(t, int64(3), stats.Errors)
	assert.Equal(t, int64(0), stats.Discoveries)
}

func TestRunHandlesDiscovery(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 1)
	source := &stubSource{fetch: func(int) (*babelia.ImageSample, error) {
		return testSample(), nil
	}}
	scorer := &stubScorer{analyze: func(int) (*analyzer.SignificanceResult, error) {
		return significantResult(), nil
	}}
	store := &memStore{}
	alerter := &stubAlerter{}
	publisher := &stubPublisher{}
	a := New(settings, source, scorer, store, alerter, publisher, nil)

	require.NoError(t, a.Run(context.Background()))

	stats := a.Statistics()
	assert.Equal(t, int64(1), stats.Discoveries)
	assert.Equal(t, int64(1), stats.AlertsSent)
	assert.Equal(t, int64(0), stats.Errors)

	require.Len(t, store.saved, 1)
	d := store.saved[0]
	assert.Equal(t, strings.Repeat("a", 40), d.LocationKey)
	assert.Equal(t, "n", d.Wall)
	assert.Equal(t, 0.91, d.Score)
	assert.Equal(t, "a detailed technical diagram", d.Reason)
	assert.Contains(t, d.AnalysisJSON, "top_matches")
	assert.NotEmpty(t, d.ImagePath)

	// the image file must exist on disk
	_, err := os.Stat(d.ImagePath)
	require.NoError(t, err)
	assert.Equal(t, settings.Output.ImageDir, filepath.Dir(d.ImagePath))

	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, 0.91, alerter.alerts[0].Score)
	assert.Equal(t, "a detailed technical diagram", alerter.alerts[0].TopMatches[0].Concept)

	require.Len(t, publisher.published, 1)
}

func TestRunAlertFailureDoesNotStopSearch(t *testing.T) {
	t.Parallel()

	source := &stubSource{fetch: func(int) (*babelia.ImageSample, error) {
		return testSample(), nil
	}}
	scorer := &stubScorer{analyze: func(call int) (*analyzer.SignificanceResult, error) {
		if call == 1 {
			return significantResult(), nil
		}
		return insignificantResult(), nil
	}}
	store := &memStore{}
	alerter := &stubAlerter{sendErr: errors.Newf("smtp unreachable").
		Category(errors.CategoryNotification).Build()}
	a := New(testSettings(t, 3), source, scorer, store, alerter, nil, nil)

	require.NoError(t, a.Run(context.Background()))

	stats := a.Statistics()
	assert.Equal(t, int64(3), stats.ImagesAnalyzed)
	assert.Equal(t, int64(1), stats.Discoveries)
	assert.Equal(t, int64(0), stats.AlertsSent)
	assert.Equal(t, int64(1), stats.Errors)
	// persistence happened before the alert failed
	assert.Len(t, store.saved, 1)
}

func TestRunSaveFailureSkipsAlert(t *testing.T) {
	t.Parallel()

	source := &stubSource{fetch: func(int) (*babelia.ImageSample, error) {
		return testSample(), nil
	}}
	scorer := &stubScorer{analyze: func(int) (*analyzer.SignificanceResult, error) {
		return significantResult(), nil
	}}
	store := &memStore{saveErr: errors.Newf("disk full").
		Category(errors.CategoryDatabase).Build()}
	alerter := &stubAlerter{}
	a := New(testSettings(t, 1), source, scorer, store, alerter, nil, nil)

	require.NoError(t, a.Run(context.Background()))

	stats := a.Statistics()
	assert.Equal(t, int64(1), stats.Discoveries)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Empty(t, alerter.alerts)
}

func TestRunStopsOnCancelledFetch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	source := &stubSource{fetch: func(call int) (*babelia.ImageSample, error) {
		if call == 3 {
			cancel()
			return nil, errors.New(context.Canceled).
				Category(errors.CategoryCancellation).Build()
		}
		return testSample(), nil
	}}
	scorer := &stubScorer{analyze: func(int) (*analyzer.SignificanceResult, error) {
		return insignificantResult(), nil
	}}
	a := New(testSettings(t, 0), source, scorer, &memStore{}, nil, nil, nil)

	require.NoError(t, a.Run(ctx))

	stats := a.Statistics()
	assert.Equal(t, int64(2), stats.ImagesAnalyzed)
	assert.Equal(t, StateStopped, a.State())
}

func TestStopEndsUnboundedRun(t *testing.T) {
	t.Parallel()

	var a *Agent
	source := &stubSource{fetch: func(int) (*babelia.ImageSample, error) {
		return testSample(), nil
	}}
	scorer := &stubScorer{analyze: func(call int) (*analyzer.SignificanceResult, error) {
		if call == 4 {
			a.Stop()
		}
		return insignificantResult(), nil
	}}
	a = New(testSettings(t, 0), source, scorer, &memStore{}, nil, nil, nil)

	require.NoError(t, a.Run(context.Background()))

	stats := a.Statistics()
	assert.Equal(t, int64(4), stats.ImagesAnalyzed)
	assert.Equal(t, StateStopped, a.State())
}

func TestTestRun(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{analyze: func(int) (*analyzer.SignificanceResult, error) {
		return insignificantResult(), nil
	}}
	alerter := &stubAlerter{}
	a := New(testSettings(t, 0), &stubSource{}, scorer, &memStore{}, alerter, nil, nil)

	require.NoError(t, a.TestRun(context.Background()))
	assert.Equal(t, 1, scorer.calls)
	assert.Equal(t, 1, alerter.tests)
}

func TestTestRunAnalyzerFailure(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{analyze: func(int) (*analyzer.SignificanceResult, error) {
		return nil, errors.Newf("model not loaded").
			Category(errors.CategoryModelInit).Build()
	}}
	a := New(testSettings(t, 0), &stubSource{}, scorer, &memStore{}, nil, nil, nil)

	err := a.TestRun(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
