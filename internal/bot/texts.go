package bot

import (
	tele "gopkg.in/telebot.v4"
)

// Button labels double as the inbound command vocabulary: Telegram reply
// keyboards send the literal label back as message text.
const (
	btnSales    = "💰 Продажи"
	btnStocks   = "📦 Остатки на складе"
	btnSettings = "🔔 Настройка уведомлений"

	btnModeAll     = "✅ Включить все уведомления"
	btnModeReviews = "✉️ Только отзывы и чаты"
	btnModeOff     = "❌ Отключить уведомления"
)

const (
	msgWelcome    = "Ассаламу алейкум, брат! Бот работает ✅"
	msgDenied     = "Брат, доступ запрещён ❌"
	msgChooseMode = "Выбери режим уведомлений:"

	msgModeAll     = "Все уведомления включены 🔔"
	msgModeReviews = "Включены только отзывы и чаты ✉️"
	msgModeOff     = "Уведомления отключены ❌"

	msgSalesErr  = "Не удалось получить продажи 😔"
	msgStocksErr = "Не удалось получить остатки 😔"
	msgNoStocks  = "Остатков нет 😔"
)

// stockListLimit caps the stock reply at the first lines of the snapshot.
const stockListLimit = 15

func mainMenu() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true}
	rm.Reply(
		rm.Row(rm.Text(btnSales), rm.Text(btnStocks)),
		rm.Row(rm.Text(btnSettings)),
	)
	return rm
}

func settingsMenu() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true}
	rm.Reply(
		rm.Row(rm.Text(btnModeAll)),
		rm.Row(rm.Text(btnModeReviews)),
		rm.Row(rm.Text(btnModeOff)),
	)
	return rm
}
