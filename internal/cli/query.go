package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/projection"
)

// PageOptions holds paging flags shared by list commands.
type PageOptions struct {
	Limit  int
	Offset int
}

func (p *PageOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.Limit, "limit", projection.DefaultLimit, fmt.Sprintf("page size (1-%d)", projection.MaxLimit))
	cmd.Flags().IntVar(&p.Offset, "offset", 0, "rows to skip")
}

func (p *PageOptions) page() (projection.Page, error) {
	page, err := projection.Page{Limit: p.Limit, Offset: p.Offset}.Normalize()
	if err != nil {
		return projection.Page{}, WrapExitError(ExitCommandError, "invalid page", err)
	}
	return page, nil
}

// messageView renders projected messages as text.
type messageView struct{ projection.Message }

func (v messageView) Text(w io.Writer) {
	m := v.Message
	fmt.Fprintf(w, "%s #%d %s %q (from %s)\n", m.Name, m.MessageID, m.Type, m.Content, shortOrDash(m.Sender))
}

type messageList struct{ projection.List[projection.Message] }

func (l messageList) Text(w io.Writer) {
	for _, m := range l.Items {
		messageView{m}.Text(w)
	}
	fmt.Fprintf(w, "%d of %d\n", len(l.Items), l.Total)
}

// statusView renders projected statuses as text.
type statusView struct{ projection.Status }

func (v statusView) Text(w io.Writer) {
	s := v.Status
	fmt.Fprintf(w, "%s %s eta=%s etb=%s ata=%s (from %s)\n",
		s.Name, s.DockingType, millis(s.ETA), millis(s.ETB), millis(s.ATA), shortOrDash(s.Sender))
}

type statusList struct{ projection.List[projection.Status] }

func (l statusList) Text(w io.Writer) {
	for _, s := range l.Items {
		statusView{s}.Text(w)
	}
	fmt.Fprintf(w, "%d of %d\n", len(l.Items), l.Total)
}

type notificationList struct{ projection.List[projection.Notification] }

func (l notificationList) Text(w io.Writer) {
	for _, n := range l.Items {
		read := " "
		if n.Read {
			read = "*"
		}
		fmt.Fprintf(w, "%s %d %s %d\n", read, n.ID, n.Type, n.CreatedTime)
	}
	fmt.Fprintf(w, "%d of %d\n", len(l.Items), l.Total)
}

func shortOrDash(key string) string {
	if key == "" {
		return "-"
	}
	return address.Short(key)
}

func millis(p *int64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatInt(*p, 10)
}

// NewMessageCommand creates the message query group.
func NewMessageCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Query projected message threads",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "get <circuit-id> <name>",
		Short:         "Show one message thread",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProjection(cmd, rootOpts, func(ctx context.Context, store *projection.Store) error {
				m, err := store.FetchMessage(ctx, args[0], args[1])
				if err != nil {
					return notFoundOr(rootOpts, cmd, "message "+args[1], err)
				}
				return rootOpts.formatter(cmd).Success(messageView{m})
			})
		},
	})

	page := &PageOptions{}
	list := &cobra.Command{
		Use:           "list <circuit-id>",
		Short:         "List message threads of a circuit",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := page.page()
			if err != nil {
				return err
			}
			return withProjection(cmd, rootOpts, func(ctx context.Context, store *projection.Store) error {
				l, err := store.ListMessages(ctx, args[0], p)
				if err != nil {
					return WrapExitError(ExitCommandError, "list messages", err)
				}
				return rootOpts.formatter(cmd).Success(messageList{l})
			})
		},
	}
	page.register(list)
	cmd.AddCommand(list)

	return cmd
}

// NewStatusCommand creates the status query group.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query projected call statuses",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "get <circuit-id> <name>",
		Short:         "Show one call status",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProjection(cmd, rootOpts, func(ctx context.Context, store *projection.Store) error {
				s, err := store.FetchStatus(ctx, args[0], args[1])
				if err != nil {
					return notFoundOr(rootOpts, cmd, "status "+args[1], err)
				}
				return rootOpts.formatter(cmd).Success(statusView{s})
			})
		},
	})

	page := &PageOptions{}
	list := &cobra.Command{
		Use:           "list <circuit-id>",
		Short:         "List call statuses of a circuit",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := page.page()
			if err != nil {
				return err
			}
			return withProjection(cmd, rootOpts, func(ctx context.Context, store *projection.Store) error {
				l, err := store.ListStatuses(ctx, args[0], p)
				if err != nil {
					return WrapExitError(ExitCommandError, "list statuses", err)
				}
				return rootOpts.formatter(cmd).Success(statusList{l})
			})
		},
	}
	page.register(list)
	cmd.AddCommand(list)

	return cmd
}

// NewNotificationCommand creates the notification group.
func NewNotificationCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Read gameroom notifications",
	}

	page := &PageOptions{}
	list := &cobra.Command{
		Use:           "list <circuit-id>",
		Short:         "List notifications targeting a circuit, oldest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := page.page()
			if err != nil {
				return err
			}
			return withProjection(cmd, rootOpts, func(ctx context.Context, store *projection.Store) error {
				l, err := store.ListNotifications(ctx, args[0], p)
				if err != nil {
					return WrapExitError(ExitCommandError, "list notifications", err)
				}
				return rootOpts.formatter(cmd).Success(notificationList{l})
			})
		},
	}
	page.register(list)
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:           "read <id>",
		Short:         "Mark a notification as read",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid notification id", err)
			}
			return withProjection(cmd, rootOpts, func(ctx context.Context, store *projection.Store) error {
				if err := store.MarkNotificationRead(ctx, id); err != nil {
					return notFoundOr(rootOpts, cmd, "notification "+args[0], err)
				}
				return rootOpts.formatter(cmd).Success(fmt.Sprintf("notification %d marked read", id))
			})
		},
	})

	return cmd
}
