package babelia

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"github.com/babelia-vision/babelia-go/internal/sampler"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSampler returns a fixed sequence of addresses, cycling when exhausted.
type stubSampler struct {
	addrs []sampler.Address
	calls int
}

func (s *stubSampler) Next() sampler.Address {
	a := s.addrs[s.calls%len(s.addrs)]
	s.calls++
	return a
}

func testAddress(key string) sampler.Address {
	return sampler.Address{
		LocationKey: strings.Repeat(key, 40),
		Wall:        sampler.WallNorth,
		Shelf:       1,
		Volume:      1,
		Page:        1,
	}
}

func testSettings() *conf.BabeliaSettings {
	return &conf.BabeliaSettings{
		BaseURL:   "https://babelia.test",
		RateLimit: 0.001,
		Timeout:   5,
		Sampling:  conf.SamplingRandom,
		UserAgent: "babelia-go-test",
	}
}

func encodeTestPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	c := NewCrawler(testSettings(), &stubSampler{addrs: []sampler.Address{testAddress("a")}})
	addr := testAddress("a")
	want := "https://babelia.test/imagebrowse.cgi?" + addr.Slug()
	assert.Equal(t, want, c.BuildURL(addr))
}

func TestFetchDecodesImage(t *testing.T) {
	addr := testAddress("a")
	c := NewCrawler(testSettings(), &stubSampler{addrs: []sampler.Address{addr}})

	httpmock.ActivateNonDefault(c.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", c.BuildURL(addr),
		httpmock.NewBytesResponder(200, encodeTestPNG(t)))

	sample, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, addr, sample.Address)
	assert.Equal(t, c.BuildURL(addr), sample.SourceURL)
	require.NotNil(t, sample.Image)
	assert.Equal(t, 8, sample.Image.Bounds().Dx())
	assert.False(t, sample.FetchedAt.IsZero())
}

func TestFetchHTTPError(t *testing.T) {
	addr := testAddress("b")
	c := NewCrawler(testSettings(), &stubSampler{addrs: []sampler.Address{addr}})

	httpmock.ActivateNonDefault(c.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", c.BuildURL(addr),
		httpmock.NewStringResponder(503, "unavailable"))

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageFetch))
}

func TestFetchDecodeError(t *testing.T) {
	addr := testAddress("c")
	c := NewCrawler(testSettings(), &stubSampler{addrs: []sampler.Address{addr}})

	httpmock.ActivateNonDefault(c.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", c.BuildURL(addr),
		httpmock.NewStringResponder(200, "this is not an image"))

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageDecode))
}

func TestFetchCancelledContext(t *testing.T) {
	addr := testAddress("d")
	settings := testSettings()
	settings.RateLimit = 60 // force the limiter wait to block
	c := NewCrawler(settings, &stubSampler{addrs: []sampler.Address{addr}})

	// first fetch consumes the limiter burst; the second must wait
	httpmock.ActivateNonDefault(c.client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("GET", c.BuildURL(addr),
		httpmock.NewBytesResponder(200, encodeTestPNG(t)))

	_, err := c.Fetch(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Fetch(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestNextAddressResamplesDuplicates(t *testing.T) {
	t.Parallel()

	a, b := testAddress("a"), testAddress("b")
	stub := &stubSampler{addrs: []sampler.Address{a, a, b}}
	c := NewCrawler(testSettings(), stub)

	first := c.nextAddress()
	assert.Equal(t, a.Slug(), first.Slug())

	// a is now recent; the next draw returns a again and must be redrawn
	second := c.nextAddress()
	assert.Equal(t, b.Slug(), second.Slug())
	assert.Equal(t, 3, stub.calls)
}

func TestNextAddressBoundedResampling(t *testing.T) {
	t.Parallel()

	a := testAddress("e")
	stub := &stubSampler{addrs: []sampler.Address{a}}
	c := NewCrawler(testSettings(), stub)

	c.nextAddress()
	// every redraw returns the same address; after the attempt budget the
	// duplicate is accepted rather than looping forever
	addr := c.nextAddress()
	assert.Equal(t, a.Slug(), addr.Slug())
	assert.Equal(t, 2+maxResampleAttempts, stub.calls)
}

func TestSequentialModeSkipsResampling(t *testing.T) {
	t.Parallel()

	a := testAddress("f")
	stub := &stubSampler{addrs: []sampler.Address{a}}
	settings := testSettings()
	settings.Sampling = conf.SamplingSequential
	c := NewCrawler(settings, stub)

	c.nextAddress()
	c.nextAddress()
	assert.Equal(t, 2, stub.calls)
}
