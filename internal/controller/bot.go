package controller

import (
	"context"

	"github.com/Freeeeeet/tutorflow/internal/controller/callbacks"
	"github.com/Freeeeeet/tutorflow/internal/controller/handlers"
	"github.com/Freeeeeet/tutorflow/internal/controller/state"
	"github.com/Freeeeeet/tutorflow/internal/ratelimit"
	"github.com/Freeeeeet/tutorflow/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type BotController struct {
	bot             *bot.Bot
	handlers        *handlers.Handlers
	callbackHandler *callbacks.Handler
	logger          *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	userService *service.UserService,
	engagement *service.EngagementService,
	ledger *service.SessionLedger,
	limiter *ratelimit.Limiter,
	logger *zap.Logger,
) *BotController {
	// Создаём менеджер состояний
	stateManager := state.NewManager()

	cmdHandlers := handlers.NewHandlers(
		userService,
		engagement,
		ledger,
		limiter,
		stateManager,
		logger,
	)

	return &BotController{
		bot:             botInstance,
		handlers:        cmdHandlers,
		callbackHandler: callbacks.NewHandler(userService, ledger, logger),
		logger:          logger,
	}
}

// RegisterHandlers регистрирует обработчики сообщений и кнопок.
// Обработчики библиотеки хранятся в map, порядок совпадений не гарантирован,
// поэтому все команды разбирает один обработчик.
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, c.handlers.HandleMessage)

	// Обработчик нажатий на inline кнопки
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, c.callbackHandler.HandleCallbackQuery)

	// Устанавливаем меню команд
	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Начать работу с ботом"},
		{Command: "help", Description: "❓ Справка по командам"},
		{Command: "request", Description: "📝 Новая заявка"},
		{Command: "pay", Description: "💳 Сообщить об оплате"},
		{Command: "engagement", Description: "📋 Состояние заявки"},
		{Command: "sessions", Description: "📅 Занятия (преподаватель)"},
		{Command: "queue", Description: "🗂 Очередь заявок (админ)"},
		{Command: "cancel", Description: "✖️ Отменить диалог"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// Start запускает бота и блокируется до отмены ctx
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}
