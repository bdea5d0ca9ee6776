package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession is the subset of *discordgo.Session used here.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts events to a channel over the REST API. No gateway
// connection is opened.
type Discord struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	Session   discordSession // injected in tests
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}
	sess := opts.Session
	if sess == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("discord: bot token is required")
		}
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = dg
	}
	return &Discord{sess: sess, channelID: opts.ChannelID}, nil
}

// Notify sends the event as an embed.
func (d *Discord) Notify(ctx context.Context, e Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title(),
		Description: e.Text(),
		Color:       embedColor(e.Kind),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Session", Value: e.SessionID, Inline: true},
			{Name: "Contact", Value: e.Contact, Inline: true},
		},
	}
	if !e.At.IsZero() {
		embed.Timestamp = e.At.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if _, err := d.sess.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

func embedColor(k Kind) int {
	if k == KindSessionCreated {
		return 0xe8a33d
	}
	return 0x439fe0
}
