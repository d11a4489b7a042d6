package sink

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"

	"github.com/seaglider-ops/commwatch/internal/subs"
)

// slackSink posts to a Slack incoming webhook. The "hook" attribute holds
// the webhook URL.
type slackSink struct {
	client *http.Client
}

func newSlack(client *http.Client) *slackSink {
	return &slackSink{client: client}
}

func (s *slackSink) Name() string { return "slack" }

func (s *slackSink) Send(ctx context.Context, ep subs.Endpoint, msg Message) error {
	hook := ep.Str("hook")
	if hook == "" {
		return fmt.Errorf("%w: slack hook", ErrBadEndpoint)
	}

	wm := &slack.WebhookMessage{
		Text: msg.Subject + ":" + msg.Body,
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, hook, s.client, wm); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}
