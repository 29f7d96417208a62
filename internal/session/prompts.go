package session

import (
	"fmt"

	"github.com/zulandar/mailslot/internal/telegraph"
)

// Button payloads.
const (
	PayloadAnon           = string(Anonymous)
	PayloadNamed          = string(Named)
	PayloadText           = string(telegraph.KindText)
	PayloadPhoto          = string(telegraph.KindPhoto)
	PayloadVideo          = string(telegraph.KindVideo)
	PayloadAudio          = string(telegraph.KindAudio)
	PayloadConfirm        = "confirm_send"
	PayloadCancel         = "cancel_send"
	PayloadAddCaption     = "add_caption"
	PayloadProfile        = "profile"
	PayloadWithdraw       = "withdraw"
	PayloadWithdrawOK     = "withdraw_confirm"
	PayloadWithdrawCancel = "withdraw_cancel"
	PayloadLinks          = "links"
	PayloadDeletePost     = "delete_post"
	PayloadDeleteOK       = "delete_confirm"
	PayloadDeleteCancel   = "delete_cancel"
	PayloadAdminPanel     = "admin_panel"
	PayloadBroadcastStart = "broadcast_start"
	PayloadSync           = "sync_db"
	PayloadBackToMenu     = "back_to_menu"
)

// WithdrawMinimum is the smallest balance that may be withdrawn.
const WithdrawMinimum = 200.0

// User-facing texts.
const (
	TextGreeting       = "Привет! 👋 Выбери действие:"
	TextMainMenu       = "🏠 Главное меню"
	TextPressStart     = "⚠️ Сначала нажмите /start для выбора действия."
	TextChooseType     = "Что хочешь отправить? 🤔"
	TextWrongContent   = "⚠️ Похоже, вы не отправили нужный файл. Попробуйте ещё раз."
	TextMediaReceived  = "Медиа получено. Добавить подпись или отправить?"
	TextAskCaption     = "📝 Напишите текст, который хотите добавить к медиа."
	TextCaptionSaved   = "✅ Подпись сохранена! Отправить сообщение админу?"
	TextNothingToTag   = "⚠️ Нет сообщения для добавления текста."
	TextNothingPending = "⚠️ Нет сообщения для подтверждения."
	TextSubmitted      = "✅ Сообщение успешно отправлено админам!"
	TextSubmitCanceled = "🚫 Отправка отменена."

	TextWithdrawTooLow   = "⚠️ Нельзя вывести меньше 200 руб. Возврат в меню."
	TextWithdrawDone     = "✅ Запрос на вывод отправлен. Баланс обнулён."
	TextWithdrawCanceled = "❌ Вывод отменён."
	TextNoWithdrawal     = "⚠️ Нет активного запроса на вывод"

	TextAskDeleteLink   = "🔗 Введите ссылку на пост из канала:"
	TextAskDeleteReason = "✏️ Введите причину удаления поста:"
	TextDeleteDone      = "✅ Запрос на удаление отправлен администратору."
	TextDeleteCanceled  = "❌ Запрос на удаление отменён."
	TextNoDeletion      = "⚠️ Нет активного запроса на удаление"

	TextAskBroadcast = "✉️ Отправьте текст для рассылки всем пользователям:"
	TextForbidden    = "⛔ Недостаточно прав"
)

var typePrompts = map[telegraph.Kind]string{
	telegraph.KindText:  "✏️ Отправь текст для администратора.",
	telegraph.KindPhoto: "🖼 Отправь фото для администратора.",
	telegraph.KindVideo: "🎥 Отправь видео для администратора.",
	telegraph.KindAudio: "🎧 Отправь аудио для администратора.",
}

// TypePrompt returns the request for content of kind k.
func TypePrompt(k telegraph.Kind) string {
	return typePrompts[k]
}

// JoinText asks the user to subscribe to chat before using the bot.
func JoinText(chat string) string {
	return fmt.Sprintf("⚠️ Для использования бота нужно подписаться на канал %s.\n\nПосле подписки нажмите /start снова.", chat)
}

func textPreview(text string) string {
	return fmt.Sprintf("📄 Твой текст:\n\n%s\n\nОтправить админу?", text)
}

func withdrawAsk(balance float64) string {
	return fmt.Sprintf("💸 На балансе %.2f руб. Укажите карту или номер СБП для вывода:", balance)
}

func withdrawReview(details string, balance float64) string {
	return fmt.Sprintf("💸 Реквизиты: %s\nСумма к выводу: %.2f руб.\nПодтвердить вывод?", details, balance)
}

func deleteReview(link, reason string) string {
	return fmt.Sprintf("🔗 Ссылка: %s\n✏️ Причина: %s\nОтправить запрос администратору?", link, reason)
}

// MainMenu builds the main menu keyboard. The admin row is shown to the
// primary administrator only.
func MainMenu(admin bool) telegraph.Keyboard {
	kb := telegraph.Rows(
		telegraph.Row(
			telegraph.DataButton("🕵️ Отправить анонимно", PayloadAnon),
			telegraph.DataButton("👤 Отправить с именем", PayloadNamed),
		),
		telegraph.Row(
			telegraph.DataButton("💼 Профиль", PayloadProfile),
			telegraph.DataButton("💸 Вывод средств", PayloadWithdraw),
		),
		telegraph.Row(telegraph.DataButton("🔗 Ссылки", PayloadLinks)),
		telegraph.Row(telegraph.DataButton("🗑️ Удалить пост", PayloadDeletePost)),
	)
	if admin {
		kb = append(kb, telegraph.Row(telegraph.DataButton("🛠️ Админ панель", PayloadAdminPanel)))
	}
	return kb
}

// AdminPanel builds the primary administrator's panel keyboard.
func AdminPanel() telegraph.Keyboard {
	return telegraph.Rows(
		telegraph.Row(telegraph.DataButton("📨 Сделать рассылку", PayloadBroadcastStart)),
		telegraph.Row(telegraph.DataButton("🔄 Синхронизация", PayloadSync)),
		telegraph.Row(backButton()),
	)
}

// LinksMenu builds the links keyboard.
func LinksMenu(chatURL, channelURL string) telegraph.Keyboard {
	var kb telegraph.Keyboard
	if chatURL != "" {
		kb = append(kb, telegraph.Row(telegraph.URLButton("💬 Чат", chatURL)))
	}
	if channelURL != "" {
		kb = append(kb, telegraph.Row(telegraph.URLButton("📢 Канал", channelURL)))
	}
	return append(kb, telegraph.Row(backButton()))
}

func backButton() telegraph.Button {
	return telegraph.DataButton("⬅️ Назад", PayloadBackToMenu)
}

func typeMenu() telegraph.Keyboard {
	return telegraph.Rows(
		telegraph.Row(telegraph.DataButton("📝 Текст", PayloadText)),
		telegraph.Row(telegraph.DataButton("🖼 Фото", PayloadPhoto)),
		telegraph.Row(telegraph.DataButton("🎥 Видео", PayloadVideo)),
		telegraph.Row(telegraph.DataButton("🎧 Аудио", PayloadAudio)),
		telegraph.Row(backButton()),
	)
}

func decisionMenu(withCaption bool) telegraph.Keyboard {
	if withCaption {
		return telegraph.Rows(telegraph.Row(
			telegraph.DataButton("📝 Добавить подпись", PayloadAddCaption),
			telegraph.DataButton("✅ Отправить", PayloadConfirm),
			telegraph.DataButton("❌ Отменить", PayloadCancel),
		))
	}
	return telegraph.Rows(telegraph.Row(
		telegraph.DataButton("✅ Отправить", PayloadConfirm),
		telegraph.DataButton("❌ Отменить", PayloadCancel),
	))
}

func withdrawMenu() telegraph.Keyboard {
	return telegraph.Rows(
		telegraph.Row(telegraph.DataButton("✅ Подтвердить вывод", PayloadWithdrawOK)),
		telegraph.Row(telegraph.DataButton("❌ Отменить", PayloadWithdrawCancel)),
	)
}

func deleteMenu() telegraph.Keyboard {
	return telegraph.Rows(
		telegraph.Row(telegraph.DataButton("✅ Подтвердить удаление", PayloadDeleteOK)),
		telegraph.Row(telegraph.DataButton("❌ Отменить", PayloadDeleteCancel)),
	)
}
