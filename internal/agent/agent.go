// Package agent orchestrates the discovery loop: sample, fetch, score,
// persist, alert.
package agent

import (
	"context"
	"encoding/json"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/babelia-vision/babelia-go/internal/analyzer"
	"github.com/babelia-vision/babelia-go/internal/babelia"
	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/datastore"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"github.com/babelia-vision/babelia-go/internal/logging"
	"github.com/babelia-vision/babelia-go/internal/mqtt"
	"github.com/babelia-vision/babelia-go/internal/notification"
	"github.com/babelia-vision/babelia-go/internal/observability"
)

// State is the agent's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RunStatistics is the single-writer counter set owned by the run loop.
// Other goroutines must read it only through Statistics().
type RunStatistics struct {
	RunID          string
	ImagesAnalyzed int64
	Discoveries    int64
	AlertsSent     int64
	Errors         int64
	StartedAt      time.Time
}

// ImageSource yields the next archive image. Implemented by babelia.Crawler.
type ImageSource interface {
	Fetch(ctx context.Context) (*babelia.ImageSample, error)
}

// Scorer scores an image for significance. Implemented by analyzer.Analyzer.
type Scorer interface {
	Analyze(img image.Image) (*analyzer.SignificanceResult, error)
}

// Alerter delivers discovery alerts. Implemented by notification.Notifier.
type Alerter interface {
	SendAlert(ctx context.Context, data *notification.AlertData) error
	SendTest(ctx context.Context) error
}

// Agent coordinates the pipeline collaborators. The run loop is the only
// writer of its statistics.
type Agent struct {
	settings  *conf.Settings
	source    ImageSource
	scorer    Scorer
	store     datastore.Interface
	notifier  Alerter     // nil when alerts are disabled
	publisher mqtt.Client // nil when MQTT is disabled
	metrics   *observability.Metrics
	logger    *slog.Logger

	state atomic.Int32
	stats RunStatistics
}

// New assembles the agent. The notifier and publisher may be nil when their
// features are disabled; metrics may be nil when telemetry is off.
func New(settings *conf.Settings, source ImageSource, scorer Scorer, store datastore.Interface,
	notifier Alerter, publisher mqtt.Client, metrics *observability.Metrics) *Agent {

	logger := logging.ForService("agent")
	if logger == nil {
		logger = slog.Default().With("service", "agent")
	}

	return &Agent{
		settings:  settings,
		source:    source,
		scorer:    scorer,
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Statistics returns a snapshot of the run counters. Valid to call from any
// goroutine once the run has finished; during a run the snapshot may be
// slightly stale.
func (a *Agent) Statistics() RunStatistics {
	return a.stats
}

// Stop requests a graceful stop. The loop exits after the in-flight
// iteration completes.
func (a *Agent) Stop() {
	if a.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		a.logger.Info("stop requested")
		a.setStateGauge(StateStopping)
	}
}

// setState transitions the lifecycle state and mirrors it to the gauge.
func (a *Agent) setState(s State) {
	a.state.Store(int32(s))
	a.setStateGauge(s)
}

func (a *Agent) setStateGauge(s State) {
	if a.metrics != nil {
		a.metrics.Discovery.RunState.Set(float64(s))
	}
}

// handleDiscovery persists a significant image and fans out alerts. Any
// failure here is counted and logged; the search continues regardless.
func (a *Agent) handleDiscovery(ctx context.Context, sample *babelia.ImageSample, result *analyzer.SignificanceResult) {
	a.stats.Discoveries++
	if a.metrics != nil {
		a.metrics.Discovery.Discoveries.Inc()
	}

	a.logger.Info("significant image found",
		"score", result.Score,
		"reason", result.Reason,
		"slug", sample.Address.Slug())

	imagePath, err := datastore.SaveImage(sample.Image, a.settings.Output.ImageDir, result.Score)
	if err != nil {
		a.recordError("save-image", err)
		return
	}

	analysisJSON, err := json.Marshal(result)
	if err != nil {
		a.recordError("marshal-analysis", err)
		return
	}

	discovery := &datastore.Discovery{
		LocationKey:   sample.Address.LocationKey,
		Wall:          string(sample.Address.Wall),
		Shelf:         sample.Address.Shelf,
		Volume:        sample.Address.Volume,
		Page:          sample.Address.Page,
		Score:         result.Score,
		Reason:        result.Reason,
		Entropy:       result.Noise.Entropy,
		NoiseScore:    result.Noise.NoiseScore,
		SemanticScore: result.Semantic.SemanticScore,
		ImagePath:     imagePath,
		SourceURL:     sample.SourceURL,
		AnalysisJSON:  string(analysisJSON),
		DiscoveredAt:  sample.FetchedAt,
	}

	if err := a.store.Save(discovery); err != nil {
		a.recordError("save-discovery", err)
		return
	}
	a.logger.Info("discovery saved", "path", imagePath)

	if a.notifier != nil {
		if err := a.notifier.SendAlert(ctx, a.alertData(sample, result, imagePath)); err != nil {
			a.recordError("send-alert", err)
		} else {
			a.stats.AlertsSent++
			if a.metrics != nil {
				a.metrics.Discovery.AlertsSent.Inc()
			}
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, discovery); err != nil {
			a.recordError("mqtt-publish", err)
		}
	}
}

// alertData builds the notification payload for a discovery.
func (a *Agent) alertData(sample *babelia.ImageSample, result *analyzer.SignificanceResult, imagePath string) *notification.AlertData {
	matches := make([]notification.Match, 0, len(result.Semantic.TopMatches))
	for _, m := range result.Semantic.TopMatches {
		matches = append(matches, notification.Match{Concept: m.Concept, Score: m.Score})
	}

	return &notification.AlertData{
		Score:          result.Score,
		Reason:         result.Reason,
		TopMatches:     matches,
		LocationKey:    sample.Address.LocationKey,
		Wall:           string(sample.Address.Wall),
		Shelf:          sample.Address.Shelf,
		Volume:         sample.Address.Volume,
		Page:           sample.Address.Page,
		ImagePath:      imagePath,
		ImagesAnalyzed: a.stats.ImagesAnalyzed,
		Discoveries:    a.stats.Discoveries,
		Timestamp:      time.Now(),
	}
}

// recordError counts a pipeline error without stopping the run.
func (a *Agent) recordError(stage string, err error) {
	a.stats.Errors++
	if a.metrics != nil {
		a.metrics.Discovery.RecordError(stage)
	}
	a.logger.Error("pipeline error", "stage", stage, "error", err)
}

// sleepCtx waits for the duration or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// isCancellation reports whether an error stems from context cancellation.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.IsCategory(err, errors.CategoryCancellation)
}
