// Package logging builds the zerolog logger shared by livedesk components.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Setup returns a logger writing to w at the given level. Format "console"
// renders human-readable lines, "json" raw JSON; "auto" picks console when w
// is a terminal.
func Setup(level, format string, w io.Writer) (zerolog.Logger, error) {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("logging: parse level %q: %w", level, err)
	}

	var output io.Writer
	switch format {
	case "json":
		output = w
	case "console":
		output = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case "auto", "":
		if isTerminal(w) {
			output = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		} else {
			output = w
		}
	default:
		return zerolog.Nop(), fmt.Errorf("logging: unknown format %q", format)
	}

	return zerolog.New(output).Level(parsedLevel).With().Timestamp().Logger(), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
