package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/chat"
	"storefront/internal/models"
	"storefront/internal/timeutil"
)

const (
	voiceChunk    = 16 << 10
	voiceInterval = 20 * time.Millisecond
	followTick    = time.Second
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		text       string
		attachPath string
		recordPath string
		follow     bool
	)
	cmd := &cobra.Command{
		Use:   "chat <ticket>",
		Short: "Show a support ticket conversation and send messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || ticketID <= 0 {
				return fmt.Errorf("invalid ticket id %q", args[0])
			}
			if attachPath != "" && recordPath != "" {
				return fmt.Errorf("--attach and --record cannot be combined")
			}
			env, err := opts.clientEnv(cmd, true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			cfg := chat.Config{
				API:    env.api,
				Alerts: env.alerts,
				Logger: env.logger,
				Encoder: &chat.Encoder{
					MaxBytes: env.cfg.Chat.MaxAttachmentBytes,
					Image: chat.ImageOptions{
						MaxDimension: env.cfg.Chat.ImageMaxDimension,
						Quality:      env.cfg.Chat.ImageQuality,
						TargetBytes:  env.cfg.Chat.ImageTargetBytes,
						MaxAttempts:  env.cfg.Chat.ImageMaxAttempts,
						MinDimension: env.cfg.Chat.ImageMinDimension,
					},
				},
				PollInterval: env.cfg.Chat.PollInterval,
				StopGrace:    env.cfg.Chat.RecorderStopGrace,
			}
			if env.cfg.Push.ChatEnabled {
				cfg.NewChannel = func() chat.Channel { return env.pushClient() }
			}
			if recordPath != "" {
				cfg.Microphone = chat.FileMicrophone{Path: recordPath, ChunkSize: voiceChunk, Interval: voiceInterval}
			}

			thread, err := chat.New(cfg).Open(ctx, ticketID)
			if err != nil {
				return err
			}
			defer thread.Close()

			tk := thread.Ticket()
			printf(cmd, "#%d %s [%s]\n", tk.ID, tk.Subject, tk.Status)
			seen := make(map[int64]bool)
			printMessages(cmd, thread.Messages(), seen)

			switch {
			case attachPath != "":
				f, err := chat.FileFromPath(attachPath)
				if err != nil {
					return err
				}
				if err := thread.Attach(f); err != nil {
					return err
				}
			case recordPath != "":
				if err := record(cmd, thread, recordPath); err != nil {
					return err
				}
			}

			if text != "" || attachPath != "" || recordPath != "" {
				if _, err := thread.Send(ctx, text); err != nil {
					return err
				}
				printMessages(cmd, thread.Messages(), seen)
			}

			if !follow {
				return nil
			}
			ticker := time.NewTicker(followTick)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					printMessages(cmd, thread.Messages(), seen)
				}
			}
		},
	}
	cmd.Flags().StringVar(&text, "send", "", "send this text")
	cmd.Flags().StringVar(&attachPath, "attach", "", "attach an image, audio or PDF file")
	cmd.Flags().StringVar(&recordPath, "record", "", "record a voice note by replaying this audio file")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep running and print new messages")
	return cmd
}

// record replays path through the file microphone and attaches the result.
func record(cmd *cobra.Command, thread *chat.Thread, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := thread.StartRecording(cmd.Context()); err != nil {
		return err
	}
	chunks := (info.Size() + voiceChunk - 1) / voiceChunk
	select {
	case <-time.After(time.Duration(chunks+1) * voiceInterval):
	case <-cmd.Context().Done():
		thread.CancelRecording()
		return cmd.Context().Err()
	}
	return thread.StopRecording(cmd.Context())
}

func printMessages(cmd *cobra.Command, msgs []models.Message, seen map[int64]bool) {
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		who := "you"
		if m.IsStaff {
			who = "support"
		}
		line := fmt.Sprintf("%s %-7s %s", timeutil.Local(m.CreatedAt).Format("15:04"), who, m.Content)
		if m.Type != models.MessageText && m.AttachmentName != "" {
			line += fmt.Sprintf(" [%s: %s]", m.Type, m.AttachmentName)
		}
		printf(cmd, "%s\n", line)
	}
}
