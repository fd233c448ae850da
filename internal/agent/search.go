package agent

import (
	"context"
	"sync"

	"github.com/babelia-vision/babelia-go/internal/analyzer"
	"github.com/babelia-vision/babelia-go/internal/babelia"
	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/datastore"
	"github.com/babelia-vision/babelia-go/internal/logging"
	"github.com/babelia-vision/babelia-go/internal/mqtt"
	"github.com/babelia-vision/babelia-go/internal/notification"
	"github.com/babelia-vision/babelia-go/internal/observability"
	"github.com/babelia-vision/babelia-go/internal/sampler"
)

// Search assembles the full pipeline from settings and runs it until the
// image cap is reached, a shutdown signal cancels ctx, or Stop is called.
func Search(ctx context.Context, settings *conf.Settings) error {
	a, cleanup, err := assemble(ctx, settings)
	if err != nil {
		return err
	}
	defer cleanup()

	return a.Run(ctx)
}

// SelfTest assembles the pipeline and verifies the analyzer and, when
// configured, alert delivery, without touching the archive.
func SelfTest(ctx context.Context, settings *conf.Settings) error {
	a, cleanup, err := assemble(ctx, settings)
	if err != nil {
		return err
	}
	defer cleanup()

	return a.TestRun(ctx)
}

// assemble builds every collaborator from settings. The returned cleanup
// closes them in reverse order of construction.
func assemble(ctx context.Context, settings *conf.Settings) (*Agent, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	smp, err := sampler.New(settings.Babelia.Sampling)
	if err != nil {
		return nil, nil, err
	}
	source := babelia.NewCrawler(&settings.Babelia, smp)

	scorer, err := analyzer.NewFromSettings(&settings.Analyzer)
	if err != nil {
		return nil, nil, err
	}
	cleanups = append(cleanups, scorer.Close)

	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, func() {
		if err := store.Close(); err != nil {
			logging.Warn("failed to close datastore", "error", err)
		}
	})

	var notifier Alerter
	if settings.Alert.Enabled {
		n, err := notification.NewNotifier(&settings.Alert, settings.Main.Name)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		notifier = n
	}

	var publisher mqtt.Client
	if settings.MQTT.Enabled {
		client := mqtt.NewClient(&settings.MQTT)
		if err := client.Connect(ctx); err != nil {
			// publishing is best effort, the search runs without it
			logging.Warn("MQTT connect failed, continuing without publishing",
				"broker", settings.MQTT.Broker, "error", err)
		} else {
			publisher = client
			cleanups = append(cleanups, client.Disconnect)
		}
	}

	var m *observability.Metrics
	if settings.Telemetry.Enabled {
		m, err = observability.NewMetrics()
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		endpoint, err := observability.NewEndpoint(settings, m)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		quitChan := make(chan struct{})
		var wg sync.WaitGroup
		endpoint.Start(&wg, quitChan)
		cleanups = append(cleanups, func() {
			close(quitChan)
			wg.Wait()
		})
	}

	return New(settings, source, scorer, store, notifier, publisher, m), cleanup, nil
}
