// Package notification delivers discovery alerts through shoutrrr services.
package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"github.com/babelia-vision/babelia-go/internal/logging"
	"github.com/k3a/html2text"
	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// sendTimeout bounds a single delivery attempt across all services.
const sendTimeout = 30 * time.Second

// Notifier sends discovery alerts. Email goes out as HTML over an smtp
// shoutrrr URL assembled from config; any extra configured service URLs
// receive a plaintext rendering of the same body.
type Notifier struct {
	settings    *conf.AlertSettings
	nodeName    string
	emailSender *router.ServiceRouter // nil when no SMTP recipient is configured
	extraSender *router.ServiceRouter // nil when no extra URLs are configured
	logger      *slog.Logger
}

// NewNotifier builds the notifier and validates the configured service URLs
// by constructing their senders up front.
func NewNotifier(settings *conf.AlertSettings, nodeName string) (*Notifier, error) {
	logger := logging.ForService("notification")
	if logger == nil {
		logger = slog.Default().With("service", "notification")
	}

	n := &Notifier{
		settings: settings,
		nodeName: nodeName,
		logger:   logger,
	}

	if settings.To != "" {
		sender, err := shoutrrr.CreateSender(n.smtpURL())
		if err != nil {
			return nil, errors.New(fmt.Errorf("invalid SMTP alert configuration: %w", err)).
				Component("notification").
				Category(errors.CategoryConfiguration).
				Build()
		}
		sender.Timeout = sendTimeout
		sender.SetLogger(log.New(io.Discard, "", 0))
		n.emailSender = sender
	}

	if len(settings.ExtraURLs) > 0 {
		sender, err := shoutrrr.CreateSender(slices.Clone(settings.ExtraURLs)...)
		if err != nil {
			return nil, errors.New(fmt.Errorf("invalid extra alert URLs: %w", err)).
				Component("notification").
				Category(errors.CategoryConfiguration).
				Build()
		}
		sender.Timeout = sendTimeout
		sender.SetLogger(log.New(io.Discard, "", 0))
		n.extraSender = sender
	}

	if n.emailSender == nil && n.extraSender == nil {
		return nil, errors.Newf("alerts enabled but no recipient or extra URLs configured").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return n, nil
}

// smtpURL assembles the shoutrrr smtp service URL from the alert settings.
func (n *Notifier) smtpURL() string {
	from := n.settings.From
	if from == "" {
		from = n.settings.Username
	}
	return fmt.Sprintf("smtp://%s:%s@%s:%d/?from=%s&to=%s&usehtml=yes&usestarttls=yes",
		url.QueryEscape(n.settings.Username),
		url.QueryEscape(n.settings.Password),
		n.settings.SMTPHost,
		n.settings.SMTPPort,
		url.QueryEscape(from),
		url.QueryEscape(n.settings.To))
}

// SendAlert delivers a discovery alert. Delivery failures propagate to the
// caller; the agent counts them and keeps running.
func (n *Notifier) SendAlert(ctx context.Context, data *AlertData) error {
	data.NodeName = n.nodeName
	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now()
	}

	body, err := renderAlertBody(data)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryNotification).
			Build()
	}

	title := fmt.Sprintf("Babelia Discovery Alert - Score: %.3f", data.Score)

	if err := n.send(ctx, n.emailSender, body, title); err != nil {
		return err
	}
	if err := n.send(ctx, n.extraSender, html2text.HTML2Text(body), title); err != nil {
		return err
	}

	n.logger.Info("discovery alert sent",
		"score", data.Score,
		"reason", data.Reason,
		"slug", fmt.Sprintf("%s-w%s-s%d-v%d-p%03d", data.LocationKey, data.Wall, data.Shelf, data.Volume, data.Page))
	return nil
}

// SendTest sends a short plaintext message to verify delivery configuration.
func (n *Notifier) SendTest(ctx context.Context) error {
	body := fmt.Sprintf("This is a test alert from %s.", n.nodeName)
	title := fmt.Sprintf("Test Alert - %s", n.nodeName)

	if err := n.send(ctx, n.emailSender, body, title); err != nil {
		return err
	}
	if err := n.send(ctx, n.extraSender, body, title); err != nil {
		return err
	}

	n.logger.Info("test alert sent")
	return nil
}

// send pushes a body through one service router. A nil sender is a no-op.
func (n *Notifier) send(ctx context.Context, sender *router.ServiceRouter, body, title string) error {
	if sender == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryCancellation).
			Build()
	}

	params := stypes.Params{}
	params.SetTitle(title)

	errs := sender.Send(body, &params)
	for _, e := range errs {
		if e != nil {
			return errors.New(fmt.Errorf("alert delivery failed: %w", e)).
				Component("notification").
				Category(errors.CategoryNotification).
				Build()
		}
	}
	return nil
}
