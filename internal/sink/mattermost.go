package sink

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/seaglider-ops/commwatch/internal/subs"
)

// mattermostSink posts to a Mattermost incoming webhook. Attributes:
// "hook" (required webhook URL), "channel", "username", and "mention"
// (handle or list of handles prefixed to the text).
type mattermostSink struct {
	client *http.Client
}

func newMattermost(client *http.Client) *mattermostSink {
	return &mattermostSink{client: client}
}

func (m *mattermostSink) Name() string { return "mattermost" }

type mattermostPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

func (m *mattermostSink) Send(ctx context.Context, ep subs.Endpoint, msg Message) error {
	hook := ep.Str("hook")
	if hook == "" {
		return fmt.Errorf("%w: mattermost hook", ErrBadEndpoint)
	}

	text := msg.Subject + ":" + msg.Body
	if mentions := ep.StrList("mention"); len(mentions) > 0 {
		for i, h := range mentions {
			if !strings.HasPrefix(h, "@") {
				mentions[i] = "@" + h
			}
		}
		text = strings.Join(mentions, " ") + " " + text
	}

	payload := mattermostPayload{
		Text:     text,
		Username: ep.Str("username"),
		Channel:  ep.Str("channel"),
	}
	if err := postJSON(ctx, m.client, hook, payload); err != nil {
		return fmt.Errorf("mattermost webhook: %w", err)
	}
	return nil
}
