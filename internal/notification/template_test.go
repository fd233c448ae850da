package notification

import (
	"strings"
	"testing"
	"time"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/k3a/html2text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAlertData() *AlertData {
	return &AlertData{
		NodeName: "Babelia-Go",
		Score:    0.871,
		Reason:   "a photograph of a human face",
		TopMatches: []Match{
			{Concept: "a photograph of a human face", Score: 0.412},
			{Concept: "a photograph of a person", Score: 0.387},
			{Concept: "a clear meaningful image", Score: 0.301},
		},
		LocationKey:    strings.Repeat("3f", 20),
		Wall:           "e",
		Shelf:          4,
		Volume:         17,
		Page:           203,
		ImagePath:      "/discoveries/20260824_120000_score0.871.jpg",
		ImagesAnalyzed: 12400,
		Discoveries:    3,
		Timestamp:      time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
}

func TestRenderAlertBody(t *testing.T) {
	t.Parallel()

	body, err := renderAlertBody(sampleAlertData())
	require.NoError(t, err)

	assert.Contains(t, body, "0.871")
	assert.Contains(t, body, "a photograph of a human face")
	assert.Contains(t, body, strings.Repeat("3f", 20))
	assert.Contains(t, body, "<strong>Wall:</strong> e")
	assert.Contains(t, body, "12400")
	assert.Contains(t, body, "2026-08-24 12:00:00")

	// every top match appears in order
	for _, m := range sampleAlertData().TopMatches {
		assert.Contains(t, body, m.Concept)
	}
}

func TestRenderAlertBodyEscapesHTML(t *testing.T) {
	t.Parallel()

	data := sampleAlertData()
	data.Reason = "<script>alert('x')</script>"
	body, err := renderAlertBody(data)
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestPlaintextRenderingKeepsContent(t *testing.T) {
	t.Parallel()

	body, err := renderAlertBody(sampleAlertData())
	require.NoError(t, err)

	plain := html2text.HTML2Text(body)
	assert.Contains(t, plain, "0.871")
	assert.Contains(t, plain, "a photograph of a human face")
	assert.NotContains(t, plain, "<div")
}

func TestDiscoveryRate(t *testing.T) {
	t.Parallel()

	d := &AlertData{ImagesAnalyzed: 10000, Discoveries: 3}
	assert.Equal(t, "0.0300%", d.DiscoveryRate())

	zero := &AlertData{}
	assert.Equal(t, "0.0000%", zero.DiscoveryRate())
}

func TestNewNotifierRequiresRecipient(t *testing.T) {
	t.Parallel()

	settings := &conf.AlertSettings{Enabled: true}
	_, err := NewNotifier(settings, "Babelia-Go")
	require.Error(t, err)
}

func TestNewNotifierBuildsSMTPURL(t *testing.T) {
	t.Parallel()

	settings := &conf.AlertSettings{
		Enabled:  true,
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		Username: "agent@example.com",
		Password: "secret",
		From:     "agent@example.com",
		To:       "alerts@example.com",
	}
	n, err := NewNotifier(settings, "Babelia-Go")
	require.NoError(t, err)

	u := n.smtpURL()
	assert.Contains(t, u, "smtp://")
	assert.Contains(t, u, "smtp.example.com:587")
	assert.Contains(t, u, "to=alerts%40example.com")
	assert.Contains(t, u, "usestarttls=yes")
}
