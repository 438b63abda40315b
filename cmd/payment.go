package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"storefront/internal/payment"
	"storefront/internal/timeutil"
)

// systemClipboard writes to the OS clipboard.
type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

func newPaymentCmd(opts *rootOptions) *cobra.Command {
	var copyCode bool
	cmd := &cobra.Command{
		Use:   "payment <id>",
		Short: "Follow a PIX payment until it is settled or expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid payment id %q", args[0])
			}
			env, err := opts.clientEnv(cmd, true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			redirected := make(chan payment.Redirect, 1)
			poller := payment.New(payment.Config{
				API:    env.api,
				Alerts: env.alerts,
				Logger: env.logger,
				Navigate: func(r payment.Redirect) {
					select {
					case redirected <- r:
					default:
					}
				},
				PollInterval:   env.cfg.Payment.PollInterval,
				PollCap:        env.cfg.Payment.PollCap,
				FallbackWindow: env.cfg.Payment.FallbackWindow,
				ExpirySanity:   env.cfg.Payment.ExpirySanity,
				RedirectDelay:  env.cfg.Payment.RedirectDelay,
				CountdownTick:  env.cfg.Payment.CountdownTick,
			})

			if err := poller.Watch(ctx, id); err != nil {
				select {
				case r := <-redirected:
					printf(cmd, "-> %s (order %d)\n", r.View, r.OrderID)
				default:
				}
				return err
			}
			defer poller.Stop()

			st := poller.State()
			printf(cmd, "Payment %d for order %d: R$ %.2f\n", st.Payment.ID, st.Payment.OrderID, st.Payment.Amount)
			if st.Payment.PixCode != "" {
				printf(cmd, "PIX copia e cola:\n%s\n", st.Payment.PixCode)
			}
			if copyCode {
				_ = poller.CopyCode(systemClipboard{})
			}

			ticker := time.NewTicker(env.cfg.Payment.CountdownTick)
			defer ticker.Stop()
			last := ""
			for {
				select {
				case <-ctx.Done():
					return nil
				case r := <-redirected:
					printf(cmd, "-> %s (order %d)\n", r.View, r.OrderID)
					return nil
				case <-ticker.C:
					if line := statusLine(poller.State()); line != last {
						printf(cmd, "%s\n", line)
						last = line
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&copyCode, "copy", false, "copy the PIX code to the clipboard")
	return cmd
}

func statusLine(st payment.State) string {
	line := string(st.Status)
	if st.Counting {
		line += "  expires in " + timeutil.FormatCountdown(st.Remaining)
	}
	if st.Polling {
		line += "  (checking)"
	}
	return line
}
