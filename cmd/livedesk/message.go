package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/livedesk/internal/models"
	"github.com/zulandar/livedesk/internal/syncengine"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Messaging commands",
	}

	cmd.AddCommand(newMessageSendCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var configPath, role, agent, correlation string

	cmd := &cobra.Command{
		Use:   "send <session-id> <body>",
		Short: "Send a message into a session",
		Long:  "Sends as the visitor by default. Reuse --correlation when retrying a failed send so the message is stored once.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDesk(cmd, configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			msg, err := d.SendMessage(context.Background(), syncengine.SendRequest{
				SessionID:     args[0],
				Role:          models.Role(role),
				Body:          args[1],
				CorrelationID: correlation,
				SenderID:      agent,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent message %d (seq %d, cursor %s)\n", msg.ID, msg.Seq, msg.Cursor())
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&role, "role", string(models.RoleVisitor), "sender role: visitor or agent")
	cmd.Flags().StringVar(&agent, "agent", "", "agent id for agent messages")
	cmd.Flags().StringVar(&correlation, "correlation", "", "client correlation id")
	return cmd
}
