package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	slackapi "github.com/slack-go/slack"
)

const maxRetries = 3

// slackClient is the subset of *slackapi.Client used here.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts events to a channel with a bot token.
type Slack struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	BotToken  string
	ChannelID string
	Client    slackClient // injected in tests
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}
	client := opts.Client
	if client == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("slack: bot token is required")
		}
		client = slackapi.New(opts.BotToken)
	}
	return &Slack{client: client, channelID: opts.ChannelID}, nil
}

// Notify posts the event as text with a colored attachment.
func (s *Slack) Notify(ctx context.Context, e Event) error {
	att := slackapi.Attachment{
		Title: e.Title(),
		Text:  e.Text(),
		Color: color(e.Kind),
		Fields: []slackapi.AttachmentField{
			{Title: "Session", Value: e.SessionID, Short: true},
			{Title: "Contact", Value: e.Contact, Short: true},
		},
	}
	if !e.At.IsZero() {
		att.Ts = json.Number(strconv.FormatInt(e.At.Unix(), 10))
	}
	options := []slackapi.MsgOption{
		slackapi.MsgOptionText(e.Title(), false),
		slackapi.MsgOptionAttachments(att),
	}
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := s.client.PostMessageContext(ctx, s.channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// retryOnRateLimit retries fn while Slack answers with a rate limit, waiting
// for the advertised interval or exponential backoff.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}
		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func color(k Kind) string {
	if k == KindSessionCreated {
		return "#e8a33d"
	}
	return "#439fe0"
}
