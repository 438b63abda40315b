package main

import (
	"context"
	"log"
	"time"

	"storefront/internal/metrics"
	"storefront/internal/services"
)

const settlerTimeout = 30 * time.Second

// startSettler finishes pending payments in the background: expired ones
// are cancelled, and with autoApprove > 0 the ones older than it are
// approved.
func startSettler(ctx context.Context, svc *services.PaymentService, every, autoApprove time.Duration, infoLog, errorLog *log.Logger) {
	if svc == nil || every <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		run := func() {
			runCtx, cancel := context.WithTimeout(ctx, settlerTimeout)
			defer cancel()

			settled, err := svc.Settle(runCtx, time.Now(), autoApprove)
			metrics.PaymentsSettledTotal.Add(float64(settled))
			if err != nil {
				errorLog.Printf("settler: failed to settle pending payments: %v", err)
				return
			}
			if settled > 0 {
				infoLog.Printf("settler: settled %d pending payments", settled)
			}
		}

		run()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
