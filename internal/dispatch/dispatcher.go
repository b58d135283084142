// Package dispatch fans a formatted marketplace event out to every
// allow-listed recipient whose notification mode permits it.
package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sellerbot/internal/marketplace"
	"sellerbot/internal/settings"
	kit "sellerbot/internal/transport"
	logx "sellerbot/pkg/logx"
)

type Dispatcher struct {
	adapter kit.Adapter
	store   settings.Store
	log     logx.Logger

	// Token bucket shared by all fan-outs; Telegram throttles bots that
	// burst too hard.
	limiter *rate.Limiter

	mu         sync.RWMutex
	recipients []int64
}

func New(adapter kit.Adapter, store settings.Store, recipients []int64, ratePerSec int, log logx.Logger) *Dispatcher {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	return &Dispatcher{
		adapter:    adapter,
		store:      store,
		log:        log,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		recipients: append([]int64(nil), recipients...),
	}
}

// SetRecipients replaces the allow-list (config hot reload).
func (d *Dispatcher) SetRecipients(ids []int64) {
	d.mu.Lock()
	d.recipients = append([]int64(nil), ids...)
	d.mu.Unlock()
}

// Broadcast delivers one event to every recipient whose mode allows the
// kind. A failed send is logged and never aborts the remaining recipients.
// It returns the number of successful and failed deliveries.
func (d *Dispatcher) Broadcast(ctx context.Context, kind marketplace.Kind, text string) (sent, failed int) {
	d.mu.RLock()
	recipients := append([]int64(nil), d.recipients...)
	d.mu.RUnlock()

	snap := d.store.Load(ctx)

	for _, uid := range recipients {
		mode := snap.Mode(uid)
		if !allows(mode, kind) {
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			// Context cancelled, likely shutdown; drop the rest of
			// the queue.
			d.log.Debug("broadcast interrupted", logx.Err(err), logx.Int("remaining", len(recipients)))
			return sent, failed
		}

		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := d.adapter.SendText(sctx, kit.ChatTarget{ChatID: uid}, text, &kit.SendOptions{DisablePreview: true})
		cancel()
		if err != nil {
			failed++
			d.log.Warn("delivery failed", logx.Int64("chat_id", uid), logx.String("kind", string(kind)), logx.Err(err))
			continue
		}
		sent++
	}

	d.log.Debug("broadcast done", logx.String("kind", string(kind)), logx.Int("sent", sent), logx.Int("failed", failed))
	return sent, failed
}

// allows implements the preference filter: "off" blocks everything,
// "reviews" passes only review/question alerts.
func allows(mode settings.Mode, kind marketplace.Kind) bool {
	switch mode {
	case settings.ModeOff:
		return false
	case settings.ModeReviews:
		return kind == marketplace.KindReview || kind == marketplace.KindQuestion
	default:
		return true
	}
}
