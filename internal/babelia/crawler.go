// Package babelia fetches images from the Babelia image archive.
package babelia

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	// register decoders for the formats the archive serves
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"github.com/babelia-vision/babelia-go/internal/logging"
	"github.com/babelia-vision/babelia-go/internal/sampler"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// maxResponseSize caps archive responses to guard against unbounded reads.
const maxResponseSize = 32 * 1024 * 1024

// recentSlugTTL is how long an issued slug suppresses re-fetching the same
// address in random mode.
const recentSlugTTL = 10 * time.Minute

// maxResampleAttempts bounds how often a duplicate random address is redrawn
// before being fetched anyway.
const maxResampleAttempts = 5

// ImageSample is one fetched archive image with its coordinates.
type ImageSample struct {
	Address   sampler.Address
	Image     image.Image
	SourceURL string
	FetchedAt time.Time
}

// Crawler fetches images from the archive, pacing requests with a blocking
// rate limiter and suppressing recently seen addresses in random mode.
type Crawler struct {
	settings *conf.BabeliaSettings
	sampler  sampler.Sampler
	client   *http.Client
	limiter  *rate.Limiter
	recent   *cache.Cache
	logger   *slog.Logger
	resample bool // redraw duplicate addresses (random mode only)
}

// NewCrawler creates a crawler over the given sampler. The rate limiter
// enforces the configured minimum interval between any two requests,
// including retries and specific-address fetches.
func NewCrawler(settings *conf.BabeliaSettings, smp sampler.Sampler) *Crawler {
	logger := logging.ForService("babelia-crawler")
	if logger == nil {
		logger = slog.Default().With("service", "babelia-crawler")
	}

	return &Crawler{
		settings: settings,
		sampler:  smp,
		client: &http.Client{
			Timeout: settings.RequestTimeout(),
		},
		limiter:  rate.NewLimiter(rate.Every(settings.MinInterval()), 1),
		recent:   cache.New(recentSlugTTL, 2*recentSlugTTL),
		logger:   logger,
		resample: settings.Sampling == conf.SamplingRandom,
	}
}

// BuildURL renders the archive image URL for an address.
func (c *Crawler) BuildURL(addr sampler.Address) string {
	return fmt.Sprintf("%s/imagebrowse.cgi?%s", c.settings.BaseURL, addr.Slug())
}

// Fetch takes the next address from the sampler and fetches its image.
// It blocks on the rate limiter before issuing the request; ctx cancels
// both the wait and the request itself.
func (c *Crawler) Fetch(ctx context.Context) (*ImageSample, error) {
	addr := c.nextAddress()
	return c.FetchAddress(ctx, addr)
}

// FetchAddress fetches the image at a specific address.
func (c *Crawler) FetchAddress(ctx context.Context, addr sampler.Address) (*ImageSample, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.New(err).
			Component("crawler").
			Category(errors.CategoryCancellation).
			Build()
	}

	url := c.BuildURL(addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("crawler").
			Category(errors.CategoryImageFetch).
			NetworkContext(url, c.settings.RequestTimeout()).
			Build()
	}
	req.Header.Set("User-Agent", c.settings.UserAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("crawler").
			Category(errors.CategoryImageFetch).
			NetworkContext(url, c.settings.RequestTimeout()).
			Timing("fetch", time.Since(start)).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status %d fetching %s", resp.StatusCode, addr.Slug()).
			Component("crawler").
			Category(errors.CategoryImageFetch).
			Context("status_code", resp.StatusCode).
			Build()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.New(err).
			Component("crawler").
			Category(errors.CategoryImageFetch).
			NetworkContext(url, c.settings.RequestTimeout()).
			Build()
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(err).
			Component("crawler").
			Category(errors.CategoryImageDecode).
			Context("slug", addr.Slug()).
			Context("bytes", len(body)).
			Build()
	}

	c.logger.Debug("fetched image",
		"slug", addr.Slug(),
		"format", format,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds())

	return &ImageSample{
		Address:   addr,
		Image:     img,
		SourceURL: url,
		FetchedAt: time.Now(),
	}, nil
}

// nextAddress draws the next address, redrawing recently seen slugs a
// bounded number of times in random mode. Sequential addresses never
// repeat, so they pass through untouched.
func (c *Crawler) nextAddress() sampler.Address {
	addr := c.sampler.Next()
	if c.resample {
		for attempt := 0; attempt < maxResampleAttempts; attempt++ {
			if _, seen := c.recent.Get(addr.Slug()); !seen {
				break
			}
			c.logger.Debug("resampling recently seen address", "slug", addr.Slug())
			addr = c.sampler.Next()
		}
	}
	c.recent.SetDefault(addr.Slug(), struct{}{})
	return addr
}
