package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/seaglider-ops/commwatch/internal/subs"
)

// DefaultRockblockURL is the public RockBLOCK message gateway.
const DefaultRockblockURL = "https://rockblock.rock7.com/rockblock/MT"

// rockblockSink relays short messages to Iridium RockBLOCK modems through a
// gateway. Attributes: "imei" (modem serial or list of serials), "usr"/"pwd"
// (gateway credentials), optional "sender", and an optional "url" override
// of the configured gateway. A message without a valid fix is skipped: the
// reference point is the payload's reason to exist.
type rockblockSink struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

func newRockblock(client *http.Client, url string, logger *slog.Logger) *rockblockSink {
	if url == "" {
		url = DefaultRockblockURL
	}
	return &rockblockSink{
		client: client,
		url:    url,
		logger: logger.With(slog.String("component", "sink.rockblock")),
	}
}

func (r *rockblockSink) Name() string { return "rockblock" }

type rockblockEnvelope struct {
	Username string             `json:"Username,omitempty"`
	Password string             `json:"Password,omitempty"`
	Messages []rockblockMessage `json:"Messages"`
}

type rockblockMessage struct {
	Message        string          `json:"Message"`
	Recipients     []string        `json:"Recipients"`
	ReferencePoint *rockblockPoint `json:"ReferencePoint,omitempty"`
	Sender         string          `json:"Sender,omitempty"`
	Timestamp      string          `json:"Timestamp"`
}

type rockblockPoint struct {
	Altitude     float64        `json:"Altitude"`
	Coordinate   rockblockCoord `json:"Coordinate"`
	Course       float64        `json:"Course"`
	Label        string         `json:"Label"`
	LocationType int            `json:"LocationType"`
	Speed        float64        `json:"Speed"`
}

type rockblockCoord struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
}

func (r *rockblockSink) Send(ctx context.Context, ep subs.Endpoint, msg Message) error {
	url := ep.Str("url")
	if url == "" {
		url = r.url
	}
	imeis := ep.StrList("imei")
	if len(imeis) == 0 {
		return fmt.Errorf("%w: rockblock imei", ErrBadEndpoint)
	}

	if !msg.Fix.Valid {
		r.logger.Info("skipping rockblock send without a valid fix",
			slog.Int("glider_id", msg.GliderID),
			slog.String("event", string(msg.Event)))
		return nil
	}

	envelope := rockblockEnvelope{
		Username: ep.Str("usr"),
		Password: ep.Str("pwd"),
		Messages: []rockblockMessage{{
			Message:    msg.Subject + ":" + msg.Body,
			Recipients: imeis,
			ReferencePoint: &rockblockPoint{
				Coordinate: rockblockCoord{
					Latitude:  msg.Fix.LatDegrees(),
					Longitude: msg.Fix.LonDegrees(),
				},
				Label: fmt.Sprintf("SG%03d", msg.GliderID),
			},
			Sender:    ep.Str("sender"),
			Timestamp: fmt.Sprintf("/Date(%d)/", msg.Fix.Time.UnixMilli()),
		}},
	}

	if err := postJSON(ctx, r.client, url, envelope); err != nil {
		return fmt.Errorf("rockblock gateway: %w", err)
	}
	return nil
}
