// Package bot routes inbound chat messages: the /start gate, the main menu
// queries, and the notification-mode sub-menu.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"sellerbot/internal/marketplace"
	"sellerbot/internal/settings"
	kit "sellerbot/internal/transport"
	logx "sellerbot/pkg/logx"
)

// Client is the slice of the marketplace client used by on-demand queries.
type Client interface {
	Sales(ctx context.Context, from time.Time) ([]marketplace.Sale, error)
	Stocks(ctx context.Context) ([]marketplace.Stock, error)
}

type Handler struct {
	adapter kit.Adapter
	client  Client
	store   settings.Store
	log     logx.Logger

	mu      sync.RWMutex
	allowed map[int64]bool

	now func() time.Time
}

func New(adapter kit.Adapter, client Client, store settings.Store, allowedIDs []int64, log logx.Logger) *Handler {
	h := &Handler{
		adapter: adapter,
		client:  client,
		store:   store,
		log:     log,
		allowed: map[int64]bool{},
		now:     time.Now,
	}
	h.SetAllowed(allowedIDs)
	return h
}

// SetAllowed replaces the allow-list (config hot reload).
func (h *Handler) SetAllowed(ids []int64) {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	h.mu.Lock()
	h.allowed = m
	h.mu.Unlock()
}

func (h *Handler) isAllowed(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.allowed[userID]
}

// DispatchLoop consumes updates until the context is cancelled. Commands run
// to completion one at a time; a panicking handler is logged and the loop
// continues with the next update.
func (h *Handler) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			h.handleSafe(ctx, up)
		}
	}
}

func (h *Handler) handleSafe(ctx context.Context, up kit.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic in command handler",
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	h.Handle(ctx, up)
}

// Handle processes one inbound message. Authorization precedes everything:
// unauthorized /start gets the fixed refusal, any other unauthorized text is
// dropped. Unrecognized text from authorized senders is silently ignored.
func (h *Handler) Handle(ctx context.Context, up kit.Update) {
	m := up.Message
	if m == nil {
		return
	}
	text := strings.TrimSpace(m.Text)
	to := kit.ChatTarget{ChatID: m.ChatID}

	if !h.isAllowed(m.FromID) {
		if text == "/start" {
			h.reply(ctx, to, msgDenied, nil)
			h.log.Info("unauthorized /start", logx.Int64("from_id", m.FromID))
		}
		return
	}

	switch text {
	case "/start":
		h.reply(ctx, to, msgWelcome, mainMenu())
	case btnSales:
		h.reply(ctx, to, h.salesSummary(ctx), nil)
	case btnStocks:
		h.reply(ctx, to, h.stockListing(ctx), nil)
	case btnSettings:
		h.reply(ctx, to, msgChooseMode, settingsMenu())
	case btnModeAll:
		h.setMode(ctx, to, m.FromID, settings.ModeAll, msgModeAll)
	case btnModeReviews:
		h.setMode(ctx, to, m.FromID, settings.ModeReviews, msgModeReviews)
	case btnModeOff:
		h.setMode(ctx, to, m.FromID, settings.ModeOff, msgModeOff)
	}
}

func (h *Handler) setMode(ctx context.Context, to kit.ChatTarget, userID int64, mode settings.Mode, confirm string) {
	if err := h.store.Set(ctx, userID, mode); err != nil {
		h.log.Error("settings write failed", logx.Int64("user_id", userID), logx.String("mode", string(mode)), logx.Err(err))
		h.reply(ctx, to, "Не удалось сохранить настройку 😔", nil)
		return
	}
	h.reply(ctx, to, confirm, mainMenu())
}

// salesSummary builds the on-demand today/week report.
func (h *Handler) salesSummary(ctx context.Context) string {
	now := h.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	today, err := h.client.Sales(ctx, midnight)
	if err != nil {
		h.log.Warn("sales query failed", logx.Err(err))
		return msgSalesErr
	}
	week, err := h.client.Sales(ctx, weekAgo)
	if err != nil {
		h.log.Warn("sales query failed", logx.Err(err))
		return msgSalesErr
	}

	return fmt.Sprintf("💰 Продажи:\nСегодня: %d шт. — %.0f ₽\nНеделя: %d шт. — %.0f ₽",
		len(today), sumForPay(today), len(week), sumForPay(week))
}

// stockListing builds the on-demand warehouse report, capped at the first
// lines of the snapshot.
func (h *Handler) stockListing(ctx context.Context) string {
	stocks, err := h.client.Stocks(ctx)
	if err != nil {
		h.log.Warn("stocks query failed", logx.Err(err))
		return msgStocksErr
	}
	if len(stocks) == 0 {
		return msgNoStocks
	}

	var b strings.Builder
	b.WriteString("📦 Остатки на складе:\n")
	for i, s := range stocks {
		if i >= stockListLimit {
			break
		}
		fmt.Fprintf(&b, "- %d: %d шт.\n", s.NmID, s.Quantity)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sumForPay(sales []marketplace.Sale) float64 {
	var total float64
	for _, s := range sales {
		total += s.ForPay
	}
	return total
}

func (h *Handler) reply(ctx context.Context, to kit.ChatTarget, text string, markup any) {
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	opt := &kit.SendOptions{DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	if _, err := h.adapter.SendText(sctx, to, text, opt); err != nil {
		h.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

// RegisterMenu publishes the /start entry to Telegram's command menu when
// the adapter supports it.
func (h *Handler) RegisterMenu(ctx context.Context) {
	mu, ok := h.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	cmds := []kit.BotCommand{{Command: "start", Description: "запустить бота"}}
	if err := mu.UpdateMenuCommands(ctx, cmds); err != nil {
		h.log.Debug("menu update failed", logx.Err(err))
	}
}
