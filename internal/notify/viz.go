package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/seaglider-ops/commwatch/internal/comms"
)

// Viz is the visualization sidechannel: a best-effort POST to the mission
// site whenever the session state changes, so the live page refreshes
// without polling. Failures are logged at debug level and forgotten; the
// site is a convenience, never a dependency.
type Viz struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewViz creates the sidechannel. An empty url yields nil, which the
// dispatcher treats as disabled.
func NewViz(url string, timeout time.Duration, logger *slog.Logger) *Viz {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Viz{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(slog.String("component", "viz")),
	}
}

type vizPayload struct {
	Glider  int    `json:"glider"`
	Dive    int    `json:"dive"`
	Content string `json:"content"`
	Time    int64  `json:"time"`
}

// Notify posts one state change.
func (v *Viz) Notify(ctx context.Context, glider, dive int, content string) {
	body, err := json.Marshal(vizPayload{
		Glider:  glider,
		Dive:    dive,
		Content: content,
		Time:    time.Now().Unix(),
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("viz notify failed", slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()
}

// vizNotify posts a session state change when the sidechannel is enabled.
func (d *Dispatcher) vizNotify(s comms.Session, content string) {
	if d.viz == nil {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	d.viz.Notify(ctx, d.log.ResolveGliderID(), s.Dive, content)
}
