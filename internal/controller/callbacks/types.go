package callbacks

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutorflow/internal/controller/callbacks/common"
	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Handler обрабатывает нажатия на inline кнопки
type Handler struct {
	userService *service.UserService
	ledger      *service.SessionLedger
	logger      *zap.Logger
}

// NewHandler создаёт новый обработчик callbacks с зависимостями
func NewHandler(userService *service.UserService, ledger *service.SessionLedger, logger *zap.Logger) *Handler {
	return &Handler{
		userService: userService,
		ledger:      ledger,
		logger:      logger,
	}
}

// HandleCallbackQuery - главный обработчик callback queries
func (h *Handler) HandleCallbackQuery(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	callback := update.CallbackQuery

	h.logger.Info("Callback received",
		zap.String("data", callback.Data),
		zap.Int64("user_id", callback.From.ID),
	)

	if callback.Data == Noop {
		common.AnswerCallback(ctx, b, callback.ID, "")
		return
	}

	text, err := h.Apply(ctx, callback.From.ID, callback.Data)
	if err != nil {
		common.AnswerCallbackAlert(ctx, b, callback.ID, common.ErrorMessage(err))
		return
	}
	common.AnswerCallback(ctx, b, callback.ID, text)

	// отметка остаётся в чате, всплывающий ответ исчезает
	if msg := common.GetMessageFromCallback(callback); msg != nil {
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: "✅ " + text}); err != nil {
			h.logger.Error("Failed to send callback confirmation", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
	}
}

// Apply выполняет действие кнопки от имени пользователя Telegram
func (h *Handler) Apply(ctx context.Context, telegramID int64, data string) (string, error) {
	if !strings.HasPrefix(data, SessionAction) {
		return "", apperrors.InvalidInput("callback", "unknown action")
	}
	action, err := DecodeSessionAction(data)
	if err != nil {
		return "", apperrors.InvalidInput("callback", err.Error())
	}

	user, err := h.userService.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return "", apperrors.Database(err)
	}
	if user == nil {
		return "", apperrors.Unauthorized("unknown telegram user")
	}

	res, err := h.ledger.UpdateStatus(ctx, user.Actor(), action.SessionID, action.RequestID, action.Status, nil)
	if err != nil {
		return "", err
	}

	text := fmt.Sprintf("Занятие #%d: %s", res.Session.ID, res.Session.Status)
	if res.Package != nil {
		text += fmt.Sprintf(", пакет %d/%d", res.Package.SessionsUsed, res.Package.TierSessions)
	}
	return text, nil
}
