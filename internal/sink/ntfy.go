package sink

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/seaglider-ops/commwatch/internal/subs"
)

// DefaultNtfyServer is the public push instance used when the configuration
// names no private one.
const DefaultNtfyServer = "https://ntfy.sh"

// ntfyStyle carries the default presentation for one event kind.
type ntfyStyle struct {
	tags     []string
	priority int
}

// ntfyStyles maps event kinds to their tags and priority. Recovery and
// critical events ring at maximum priority; routine file events stay quiet.
var ntfyStyles = map[subs.EventKind]ntfyStyle{
	subs.EventRecov:     {[]string{"stop_sign"}, 5},
	subs.EventCritical:  {[]string{"rotating_light"}, 5},
	subs.EventAlerts:    {[]string{"warning"}, 4},
	subs.EventErrors:    {[]string{"warning"}, 4},
	subs.EventTraceback: {[]string{"beetle"}, 4},
	subs.EventLateGPS:   {[]string{"hourglass_flowing_sand"}, 4},
	subs.EventGPS:       {[]string{"ocean"}, 3},
	subs.EventDrift:     {[]string{"sailboat"}, 3},
	subs.EventDiveTar:   {[]string{"package"}, 2},
	subs.EventComp:      {[]string{"package"}, 2},
	subs.EventUpload:    {[]string{"outbox_tray"}, 2},
}

// ntfySink publishes to an ntfy topic. Attributes: "topic" (required),
// "server" (overrides the configured instance), and an optional "priority"
// mapping of event kind to priority override.
type ntfySink struct {
	client  *http.Client
	server  string
	vizBase string
}

func newNtfy(client *http.Client, server, vizBase string) *ntfySink {
	if server == "" {
		server = DefaultNtfyServer
	}
	return &ntfySink{client: client, server: server, vizBase: vizBase}
}

func (n *ntfySink) Name() string { return "ntfy" }

type ntfyAction struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url"`
}

type ntfyPayload struct {
	Topic    string       `json:"topic"`
	Title    string       `json:"title"`
	Message  string       `json:"message"`
	Priority int          `json:"priority,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	Actions  []ntfyAction `json:"actions,omitempty"`
}

func (n *ntfySink) Send(ctx context.Context, ep subs.Endpoint, msg Message) error {
	topic := ep.Str("topic")
	if topic == "" {
		return fmt.Errorf("%w: ntfy topic", ErrBadEndpoint)
	}
	server := ep.Str("server")
	if server == "" {
		server = n.server
	}

	style := ntfyStyles[msg.Event]
	priority := style.priority
	if p := ep.PriorityFor(msg.Event); p > 0 {
		priority = p
	}

	payload := ntfyPayload{
		Topic:    topic,
		Title:    msg.Subject,
		Message:  msg.Body,
		Priority: priority,
		Tags:     style.tags,
		Actions:  n.actions(msg),
	}
	if err := postJSON(ctx, n.client, server, payload); err != nil {
		return fmt.Errorf("ntfy publish: %w", err)
	}
	return nil
}

// actions links the notification into the visualization site when one is
// configured: deep links for the dive list and the map, plus the raw comm
// log when the body carries the fix's timestamp.
func (n *ntfySink) actions(msg Message) []ntfyAction {
	if n.vizBase == "" {
		return nil
	}
	base := strings.TrimRight(n.vizBase, "/")
	sg := fmt.Sprintf("SG%03d", msg.GliderID)

	acts := []ntfyAction{
		{
			Action: "view",
			Label:  "Dives",
			URL:    fmt.Sprintf("%s/%s", base, sg),
		},
		{
			Action: "view",
			Label:  "Map",
			URL:    fmt.Sprintf("%s/%s/map", base, sg),
		},
	}
	if msg.Fix.Valid && strings.Contains(msg.Body, msg.Fix.Time.Format(time.RFC3339)) {
		acts = append(acts, ntfyAction{
			Action: "view",
			Label:  "Comm log",
			URL:    fmt.Sprintf("%s/%s/baselog/%d", base, sg, msg.Fix.Time.Unix()),
		})
	}
	return acts
}
