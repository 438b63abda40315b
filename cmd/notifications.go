package main

import (
	"github.com/spf13/cobra"

	"storefront/internal/models"
	"storefront/internal/notifications"
	"storefront/internal/timeutil"
)

func newNotificationsCmd(opts *rootOptions) *cobra.Command {
	var (
		readID   int64
		deleteID int64
		readAll  bool
		follow   bool
	)
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "List notifications, mark them read or delete them",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.clientEnv(cmd, true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			sync := notifications.New(notifications.Config{
				API:              env.api,
				Alerts:           env.alerts,
				Logger:           env.logger,
				NewChannel:       func() notifications.Channel { return env.pushClient() },
				PageSize:         env.cfg.Notifications.PageSize,
				FallbackInterval: env.cfg.Notifications.FallbackInterval,
			})

			if follow {
				stop := sync.Bind(ctx, env.session)
				<-ctx.Done()
				stop()
				printNotifications(cmd, sync.Snapshot())
				return nil
			}

			if err := sync.Refresh(ctx); err != nil {
				return err
			}
			switch {
			case readAll:
				sync.MarkAllAsRead(ctx)
			case readID > 0:
				sync.MarkAsRead(ctx, readID)
			case deleteID > 0:
				sync.Delete(ctx, deleteID)
			}
			sync.Wait()
			printNotifications(cmd, sync.Snapshot())
			return nil
		},
	}
	cmd.Flags().Int64Var(&readID, "read", 0, "mark the notification with this id as read")
	cmd.Flags().BoolVar(&readAll, "read-all", false, "mark every notification as read")
	cmd.Flags().Int64Var(&deleteID, "delete", 0, "delete the notification with this id")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep running and print notifications as they arrive")
	cmd.MarkFlagsMutuallyExclusive("read", "read-all", "delete", "follow")
	return cmd
}

func printNotifications(cmd *cobra.Command, st notifications.State) {
	printf(cmd, "%d unread\n", st.Unread)
	for _, n := range st.Notifications {
		mark := " "
		if !n.IsRead {
			mark = "*"
		}
		printf(cmd, "%s %5d  %s  %-8s %s: %s\n", mark, n.ID,
			timeutil.Local(n.CreatedAt).Format("02/01 15:04"), category(n), n.Title, n.Message)
	}
}

func category(n models.Notification) string {
	return string(models.ParseNotificationCategory(string(n.Type)))
}
