package sink

import (
	"context"
	"fmt"
	"net/http"

	"github.com/seaglider-ops/commwatch/internal/subs"
)

// postSink delivers the raw "<subject>:<body>" text to an arbitrary HTTP
// endpoint named by the "url" attribute. The receiving side owns the
// interpretation.
type postSink struct {
	client *http.Client
}

func newPost(client *http.Client) *postSink {
	return &postSink{client: client}
}

func (p *postSink) Name() string { return "post" }

func (p *postSink) Send(ctx context.Context, ep subs.Endpoint, msg Message) error {
	url := ep.Str("url")
	if url == "" {
		return fmt.Errorf("%w: post url", ErrBadEndpoint)
	}

	body := []byte(msg.Subject + ":" + msg.Body)
	if err := postRaw(ctx, p.client, url, "application/json", body); err != nil {
		return fmt.Errorf("raw post: %w", err)
	}
	return nil
}
