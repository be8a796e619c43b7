package cli

import (
	"context"
	"strings"
	"time"

	"writepad/internal/client"

	"github.com/spf13/cobra"
)

func newInboxCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Direct messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMail(cmd, app, func(mail *client.MailStore) error {
				conversations, err := mail.Conversations(cmd.Context())
				if err != nil && len(conversations) == 0 {
					return err
				}
				return writeOut(cmd, app, map[string]any{
					"unread":        mail.UnreadTotal(),
					"conversations": conversations,
				})
			})
		},
	}
	cmd.AddCommand(newInboxThreadCmd(app))
	cmd.AddCommand(newInboxSendCmd(app))
	cmd.AddCommand(newInboxWatchCmd(app))
	return cmd
}

func withMail(cmd *cobra.Command, app *App, fn func(*client.MailStore) error) error {
	s, err := signedIn(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.close(cmd.Context())
	mail, err := s.workspace.Mail()
	if err != nil {
		return writeErr(cmd, err)
	}
	if err := mail.Fetch(cmd.Context()); err != nil {
		return writeErr(cmd, err)
	}
	if err := fn(mail); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

func newInboxThreadCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "thread <user-id>",
		Short: "Show the messages exchanged with a user and mark them read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMail(cmd, app, func(mail *client.MailStore) error {
				thread := mail.Thread(args[0])
				marked, err := mail.MarkAsRead(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"messages": thread, "markedRead": marked})
			})
		},
	}
}

func newInboxSendCmd(app *App) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "send <user-id>",
		Short: "Send a direct message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMail(cmd, app, func(mail *client.MailStore) error {
				sent, err := mail.Send(cmd.Context(), args[0], strings.TrimSpace(message))
				if err != nil {
					return err
				}
				return writeOut(cmd, app, sent)
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Message text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newInboxWatchCmd(app *App) *cobra.Command {
	var every, duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the inbox and print the unread count whenever it changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if every <= 0 {
				return writeErr(cmd, &client.ValidationError{Op: "inbox watch", Code: "VALIDATION_ERROR", Message: "--every must be positive"})
			}
			return withMail(cmd, app, func(mail *client.MailStore) error {
				ctx := cmd.Context()
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}

				changes := make(chan int, 1)
				last := mail.UnreadTotal()
				unsub := mail.Subscribe(func() {
					if mail.Loading() {
						return
					}
					select {
					case changes <- mail.UnreadTotal():
					default:
					}
				})
				defer unsub()
				if err := writeOut(cmd, app, map[string]any{"unread": last, "at": time.Now().UTC()}); err != nil {
					return err
				}

				go mail.Poll(ctx, every)
				for {
					select {
					case <-ctx.Done():
						return nil
					case unread := <-changes:
						if unread == last {
							continue
						}
						last = unread
						if err := writeOut(cmd, app, map[string]any{"unread": unread, "at": time.Now().UTC()}); err != nil {
							return err
						}
					}
				}
			})
		},
	}

	cmd.Flags().DurationVar(&every, "every", 30*time.Second, "Poll interval")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}
