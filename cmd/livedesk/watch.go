package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"github.com/zulandar/livedesk/internal/models"
)

func newWatchCmd() *cobra.Command {
	var configPath, since string

	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Stream a session's messages in real-time",
		Long:  "Subscribes to a session and prints every message in order, starting from the beginning or from --since. Stops on Ctrl+C or when the session is closed from this process.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, configPath, args[0], since)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&since, "since", "", "resume after this cursor")
	return cmd
}

func runWatch(cmd *cobra.Command, configPath, sessionID, since string) error {
	var from *models.Cursor
	if since != "" {
		c, err := models.ParseCursor(since)
		if err != nil {
			return err
		}
		from = &c
	}

	d, err := openDesk(cmd, configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	sub, err := d.OpenSession(ctx, sessionID, from,
		func(m models.Message) {
			mu.Lock()
			defer mu.Unlock()
			printWatchMessage(out, m)
		},
		func(err error) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "! %v\n", err)
		})
	if err != nil {
		return err
	}
	defer d.CloseSubscription(sub)

	mu.Lock()
	fmt.Fprintf(out, "Watching session %s... (Ctrl+C to stop)\n", sessionID)
	mu.Unlock()

	select {
	case <-ctx.Done():
	case <-sub.Done():
	}
	return nil
}

func printWatchMessage(w io.Writer, m models.Message) {
	sender := string(m.Role)
	if m.SenderID != "" {
		sender += ":" + m.SenderID
	}
	fmt.Fprintf(w, "[%s] #%d %-16s %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Seq, sender, m.Body)
}
