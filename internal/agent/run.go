package agent

import (
	"context"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
)

// Run executes the search loop until the image cap is reached, Stop is
// called, or ctx is cancelled. Fetch failures are retried without counting
// against the analyzed total; analysis failures are counted and backed off.
func (a *Agent) Run(ctx context.Context) error {
	a.stats = RunStatistics{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	a.setState(StateRunning)
	a.logStartup()

	fetchRetry := time.Duration(a.settings.Search.FetchRetryDelay) * time.Second
	errorBackoff := time.Duration(a.settings.Search.ErrorBackoff) * time.Second
	maxImages := int64(a.settings.Search.MaxImages)
	progressEvery := int64(a.settings.Search.ProgressInterval)

	for a.State() == StateRunning {
		if ctx.Err() != nil {
			break
		}
		if maxImages > 0 && a.stats.ImagesAnalyzed >= maxImages {
			a.logger.Info("image cap reached", "max_images", maxImages)
			break
		}

		fetchStart := time.Now()
		sample, err := a.source.Fetch(ctx)
		if err != nil {
			if isCancellation(err) {
				break
			}
			a.logger.Warn("fetch failed, retrying",
				"error", err,
				"retry_seconds", fetchRetry.Seconds())
			sleepCtx(ctx, fetchRetry)
			continue
		}
		if a.metrics != nil {
			a.metrics.Discovery.FetchDuration.Observe(time.Since(fetchStart).Seconds())
		}

		a.stats.ImagesAnalyzed++
		if a.metrics != nil {
			a.metrics.Discovery.ImagesAnalyzed.Inc()
		}

		analysisStart := time.Now()
		result, err := a.scorer.Analyze(sample.Image)
		if err != nil {
			a.recordError("analyze", err)
			sleepCtx(ctx, errorBackoff)
			continue
		}
		if a.metrics != nil {
			a.metrics.Discovery.AnalysisDuration.Observe(time.Since(analysisStart).Seconds())
			a.metrics.Discovery.ScoreHistogram.Observe(result.Score)
		}

		if progressEvery > 0 && a.stats.ImagesAnalyzed%progressEvery == 0 {
			a.logProgress()
		}

		if result.IsSignificant {
			a.handleDiscovery(ctx, sample, result)
		}
	}

	a.setState(StateStopped)
	a.logFinalStats()
	return nil
}

// TestRun verifies the pipeline end to end without touching the archive:
// it scores a synthetic image and, when alerts are configured, sends a
// test email.
func (a *Agent) TestRun(ctx context.Context) error {
	a.logger.Info("running pipeline self test")

	img := image.NewRGBA(image.Rect(0, 0, 224, 224))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	result, err := a.scorer.Analyze(img)
	if err != nil {
		return err
	}
	a.logger.Info("analyzer self test passed",
		"score", result.Score,
		"reason", result.Reason)

	if a.notifier != nil {
		if err := a.notifier.SendTest(ctx); err != nil {
			return err
		}
		a.logger.Info("test alert sent")
	}

	return nil
}

// logStartup records the run identity and host environment.
func (a *Agent) logStartup() {
	attrs := []any{
		"run_id", a.stats.RunID,
		"base_url", a.settings.Babelia.BaseURL,
		"sampling", a.settings.Babelia.Sampling,
		"threshold", a.settings.Analyzer.Threshold,
		"max_images", a.settings.Search.MaxImages,
		"alerts_enabled", a.notifier != nil,
	}
	if info, err := host.Info(); err == nil {
		attrs = append(attrs,
			"hostname", info.Hostname,
			"os", info.OS,
			"platform", info.Platform)
	}
	a.logger.Info("search started", attrs...)
}

// logProgress reports throughput at the configured interval.
func (a *Agent) logProgress() {
	elapsed := time.Since(a.stats.StartedAt)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(a.stats.ImagesAnalyzed) / elapsed.Seconds()
	}
	a.logger.Info("progress",
		"images_analyzed", a.stats.ImagesAnalyzed,
		"discoveries", a.stats.Discoveries,
		"errors", a.stats.Errors,
		"rate_per_second", rate)
}

// logFinalStats summarizes the completed run.
func (a *Agent) logFinalStats() {
	elapsed := time.Since(a.stats.StartedAt)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(a.stats.ImagesAnalyzed) / elapsed.Seconds()
	}
	discoveryRate := 0.0
	if a.stats.ImagesAnalyzed > 0 {
		discoveryRate = float64(a.stats.Discoveries) / float64(a.stats.ImagesAnalyzed) * 100
	}
	a.logger.Info("search finished",
		"run_id", a.stats.RunID,
		"runtime_hours", elapsed.Hours(),
		"images_analyzed", a.stats.ImagesAnalyzed,
		"discoveries", a.stats.Discoveries,
		"alerts_sent", a.stats.AlertsSent,
		"errors", a.stats.Errors,
		"avg_rate_per_second", rate,
		"discovery_rate_percent", discoveryRate)
}
