package bot

import (
	"fmt"

	"github.com/zulandar/mailslot/internal/ledger"
	"github.com/zulandar/mailslot/internal/relay"
	"github.com/zulandar/mailslot/internal/telegraph"
)

// WelcomeCredit is credited once, when a user first completes /start.
const WelcomeCredit = 1.0

// Texts the router shows outside the conversation state machine.
const (
	TextLinks            = "🔗 Полезные ссылки:"
	TextAdminPanel       = "🛠️ Админ панель"
	TextAdminOnly        = "❌ Только админ может постить в канал."
	TextAlreadyPublished = "⚠️ Этот пост уже опубликован."
	TextBadClaim         = "⚠️ Не удалось определить автора поста."
	TextPublished        = "📢 Опубликовано в канал."
	TextPublishFailed    = "⚠️ Не удалось опубликовать пост."
	TextBalanceFailed    = "⚠️ Не удалось получить баланс. Попробуйте позже."
	TextWithdrawFailed   = "⚠️ Не удалось обработать запрос на вывод. Попробуйте позже."
	TextBroadcastFailed  = "⚠️ Рассылка не удалась: не получен список пользователей."
)

// handleOrDash returns "@name", or "—" for users without a username.
func handleOrDash(u telegraph.User) string {
	if h := u.Handle(); h != "" {
		return h
	}
	return ledger.NoHandle
}

// usernameOrDash returns the bare username, or "—".
func usernameOrDash(u telegraph.User) string {
	if u.Username != "" {
		return u.Username
	}
	return ledger.NoHandle
}

// ProfileText describes a user's account.
func ProfileText(u telegraph.User, balance float64, posts int) string {
	return fmt.Sprintf("👤 Профиль пользователя\n\n"+
		"💬 Username: %s\n"+
		"🆔 TG ID: %d\n"+
		"💰 Баланс: %.2f руб.\n"+
		"📝 Опубликованных постов: %d",
		handleOrDash(u), u.ID, balance, posts)
}

// SyncReport summarizes a reconcile run for the administrator.
func SyncReport(c ledger.Counts) string {
	return fmt.Sprintf("🔄 Синхронизация завершена успешно.\n"+
		"👥 Пользователи: %d\n"+
		"💰 Балансы: %d\n"+
		"📝 История: %d",
		c.Users, c.Balances, c.History)
}

// SyncFailed reports a failed reconcile run.
func SyncFailed(err error) string {
	return fmt.Sprintf("⚠️ Синхронизация не удалась: %v", err)
}

// WithdrawNotice tells the administrators what to pay out.
func WithdrawNotice(u telegraph.User, amount float64, details string) string {
	return fmt.Sprintf("Запрос на вывод средств\n"+
		"Пользователь: @%s\n"+
		"ID: %d\n"+
		"Сумма: %.2f руб.\n"+
		"Реквизиты: %s",
		usernameOrDash(u), u.ID, amount, details)
}

// DeleteNotice asks the administrators to remove a channel post.
func DeleteNotice(u telegraph.User, link, reason string) string {
	return fmt.Sprintf("Удаление поста\n"+
		"Ссылка: %s\n"+
		"Причина: %s\n"+
		"ID: %d\n"+
		"Пользователь: @%s",
		link, reason, u.ID, usernameOrDash(u))
}

// BroadcastReport is the tally shown to the administrator after a broadcast.
func BroadcastReport(t relay.Tally) string {
	return fmt.Sprintf("✅ Рассылка завершена. Успешно: %d, ошибок: %d.", t.Sent, t.Failed)
}
