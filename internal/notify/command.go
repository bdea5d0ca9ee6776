package notify

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Command runs a shell command template per event, e.g.
// "notify-send 'livedesk' '{{.Title}}'". Inside tmux it also shows a
// display-message.
type Command struct {
	template string
	log      zerolog.Logger
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	getenv   func(string) string
}

// NewCommand creates a Command notifier.
func NewCommand(template string, log zerolog.Logger) *Command {
	return &Command{
		template: template,
		log:      log,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		getenv: os.Getenv,
	}
}

// Notify runs the command. A tmux failure is logged only.
func (c *Command) Notify(ctx context.Context, e Event) error {
	if c.getenv("TMUX") != "" {
		if out, err := c.run(ctx, "tmux", "display-message", e.Title()); err != nil {
			c.log.Debug().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("tmux display-message failed")
		}
	}
	if c.template == "" {
		return nil
	}
	if out, err := c.run(ctx, "sh", "-c", expand(c.template, e)); err != nil {
		return fmt.Errorf("notify: command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// expand replaces placeholders in the command template with event values.
func expand(template string, e Event) string {
	r := strings.NewReplacer(
		"{{.Title}}", e.Title(),
		"{{.Body}}", e.Text(),
		"{{.Session}}", e.SessionID,
		"{{.Name}}", e.Name,
		"{{.Contact}}", e.Contact,
		"{{.Kind}}", string(e.Kind),
	)
	return r.Replace(template)
}
