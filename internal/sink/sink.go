// Package sink implements the notification transports: one adapter per sink
// kind. Adapters are stateless beyond their shared HTTP client; the
// dispatcher isolates their failures, so an adapter reports errors instead
// of retrying.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/seaglider-ops/commwatch/internal/comms"
	"github.com/seaglider-ops/commwatch/internal/subs"
)

// Sentinel errors.
var (
	// ErrBadEndpoint indicates the endpoint lacks an attribute the adapter
	// requires.
	ErrBadEndpoint = errors.New("endpoint missing required attribute")

	// ErrHTTPStatus indicates the remote service answered outside 2xx.
	ErrHTTPStatus = errors.New("unexpected http status")
)

// DefaultTimeout bounds one send when the configuration does not say
// otherwise.
const DefaultTimeout = 10 * time.Second

// Message is one rendered notification. Subject and Body are final text;
// coordinate formatting per the target's latlon preference happened before
// the message reached the adapter.
type Message struct {
	// GliderID is the glider's serial number.
	GliderID int

	// Event is the event kind after any elevation.
	Event subs.EventKind

	// Subject is the short line ("GPS SG236").
	Subject string

	// Body is the full text, possibly multi-line.
	Body string

	// Fix is the last known surfacing position. May be invalid.
	Fix comms.GPSFix
}

// Sink sends a message to one endpoint of its kind.
type Sink interface {
	// Name returns the sink kind's name for logs and metrics.
	Name() string

	// Send delivers msg to ep. Errors are reported, never retried here.
	Send(ctx context.Context, ep subs.Endpoint, msg Message) error
}

// SMTPConfig points at the outbound mail forwarder.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Options carries the ambient settings the adapters need.
type Options struct {
	// Timeout bounds one send. Zero means DefaultTimeout.
	Timeout time.Duration

	// SMTP configures the email adapter's forwarder.
	SMTP SMTPConfig

	// VizBaseURL is the mission visualization site; when set, push
	// notifications carry view actions into it.
	VizBaseURL string

	// NtfyServer is the push server base URL. Empty means the public
	// ntfy.sh instance.
	NtfyServer string

	// RockblockURL is the satellite-text gateway. Empty means
	// DefaultRockblockURL.
	RockblockURL string
}

// Registry holds one adapter per sink kind.
type Registry struct {
	sinks map[subs.SinkKind]Sink
}

// NewRegistry builds the full adapter set.
func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: opts.Timeout}

	return &Registry{
		sinks: map[subs.SinkKind]Sink{
			subs.SinkEmail:      newEmail(opts.SMTP, opts.Timeout, logger),
			subs.SinkSlack:      newSlack(client),
			subs.SinkMattermost: newMattermost(client),
			subs.SinkRockblock:  newRockblock(client, opts.RockblockURL, logger),
			subs.SinkPost:       newPost(client),
			subs.SinkNtfy:       newNtfy(client, opts.NtfyServer, opts.VizBaseURL),
		},
	}
}

// For returns the adapter for kind.
func (r *Registry) For(kind subs.SinkKind) (Sink, bool) {
	s, ok := r.sinks[kind]
	return s, ok
}

// postJSON sends payload as a JSON body and fails on a non-2xx answer.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return postRaw(ctx, client, url, "application/json", body)
}

// postRaw sends body verbatim and fails on a non-2xx answer.
func postRaw(ctx context.Context, client *http.Client, url, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s from %s", ErrHTTPStatus, resp.Status, url)
	}
	return nil
}
