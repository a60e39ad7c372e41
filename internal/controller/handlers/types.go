package handlers

import (
	"time"

	"github.com/Freeeeeet/tutorflow/internal/controller/state"
	"github.com/Freeeeeet/tutorflow/internal/ratelimit"
	"github.com/Freeeeeet/tutorflow/internal/service"
	"go.uber.org/zap"
)

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	userService  *service.UserService
	engagement   *service.EngagementService
	ledger       *service.SessionLedger
	limiter      *ratelimit.Limiter
	stateManager *state.Manager
	logger       *zap.Logger
	now          func() time.Time
	commands     map[string]command
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService *service.UserService,
	engagement *service.EngagementService,
	ledger *service.SessionLedger,
	limiter *ratelimit.Limiter,
	stateManager *state.Manager,
	logger *zap.Logger,
) *Handlers {
	h := &Handlers{
		userService:  userService,
		engagement:   engagement,
		ledger:       ledger,
		limiter:      limiter,
		stateManager: stateManager,
		logger:       logger,
		now:          time.Now,
	}
	h.commands = h.commandTable()
	return h
}
