package handlers

import (
	"context"
	"errors"

	"github.com/Freeeeeet/tutorflow/internal/controller/callbacks/common"
	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// usageError неверные аргументы команды; показываем подсказку
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usage(err error) error {
	return &usageError{msg: err.Error()}
}

// requireActor проверяет что пользователь зарегистрирован
func (h *Handlers) requireActor(ctx context.Context, telegramID int64) (model.Actor, error) {
	user, err := h.userService.GetByTelegramID(ctx, telegramID)
	if err != nil {
		h.logger.Error("Failed to get user", zap.Int64("telegram_id", telegramID), zap.Error(err))
		return model.Actor{}, apperrors.Database(err)
	}
	if user == nil {
		return model.Actor{}, apperrors.Unauthorized("unknown telegram user")
	}
	return user.Actor(), nil
}

// allow лимит команд на пользователя Telegram
func (h *Handlers) allow(ctx context.Context, telegramID int64) error {
	if !h.limiter.Allow(ctx, "telegram", telegramID).Allowed {
		return apperrors.RateLimitExceeded()
	}
	return nil
}

// replyFor превращает ошибку команды в ответ
func replyFor(cmd command, err error) *reply {
	var ue *usageError
	if errors.As(err, &ue) {
		return &reply{text: "❌ " + ue.msg + "\n\nИспользование: " + cmd.usage}
	}
	return &reply{text: common.ErrorMessage(err)}
}

// send отправляет ответ и логирует если не удалось
func (h *Handlers) send(ctx context.Context, b *bot.Bot, chatID int64, r *reply) {
	if r == nil {
		return
	}

	if r.document != nil {
		_, err := b.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:   chatID,
			Document: &models.InputFileUpload{Filename: r.document.name, Data: r.document.reader()},
			Caption:  r.text,
		})
		if err != nil {
			h.logger.Error("Failed to send document",
				zap.Int64("chat_id", chatID),
				zap.String("file", r.document.name),
				zap.Error(err),
			)
		}
		return
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   r.text,
	}
	if r.markup != nil {
		params.ReplyMarkup = r.markup
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}
