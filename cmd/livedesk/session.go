package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Visitor session commands",
	}

	cmd.AddCommand(newSessionCreateCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionActivateCmd())
	cmd.AddCommand(newSessionCloseCmd())
	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var configPath, name, contact string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a waiting session as a visitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDesk(cmd, configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			sess, err := d.CreateSession(context.Background(), name, contact)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created session %s (%s)\n", sess.ID, sess.Status)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&name, "name", "", "visitor display name (required)")
	cmd.Flags().StringVar(&contact, "contact", "", "visitor contact address (required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("contact")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDesk(cmd, configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			sessions, err := d.ListSessions(context.Background())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCONTACT\tSTATUS\tAGENT\tCREATED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.Name, s.Contact, s.Status, s.AssignedAgent,
					s.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			w.Flush()
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newSessionActivateCmd() *cobra.Command {
	var configPath, agent string

	cmd := &cobra.Command{
		Use:   "activate <session-id>",
		Short: "Assign a waiting session to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDesk(cmd, configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.ActivateSession(context.Background(), args[0], agent); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s active\n", args[0])
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&agent, "agent", "", "agent id to record on the session")
	return cmd
}

func newSessionCloseCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDesk(cmd, configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.CloseSession(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s closed\n", args[0])
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
