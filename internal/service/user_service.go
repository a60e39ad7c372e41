package service

import (
	"context"
	"fmt"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository"
	"go.uber.org/zap"
)

// UserService справочник пользователей: по нему транспорт получает Actor
type UserService struct {
	userRepo repository.UserRepository
	// роли, выдаваемые при регистрации по Telegram ID (из конфигурации)
	bootstrap map[int64][]model.Role
	logger    *zap.Logger
}

func NewUserService(userRepo repository.UserRepository, bootstrap map[int64][]model.Role, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo:  userRepo,
		bootstrap: bootstrap,
		logger:    logger,
	}
}

// RegisterUser регистрирует или обновляет пользователя
func (s *UserService) RegisterUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, error) {
	// Проверяем существует ли пользователь
	existingUser, err := s.userRepo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	// Если пользователь уже существует, обновляем данные
	if existingUser != nil {
		existingUser.Username = username
		existingUser.FirstName = firstName
		existingUser.LastName = lastName

		if err := s.userRepo.Update(ctx, existingUser); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}

		if missing := s.missingBootstrapRoles(existingUser); len(missing) > 0 {
			existingUser.Roles = append(existingUser.Roles, missing...)
			if err := s.userRepo.SetRoles(ctx, existingUser.ID, existingUser.Roles); err != nil {
				return nil, fmt.Errorf("set roles: %w", err)
			}
			s.logger.Info("User roles granted from config",
				zap.Int64("user_id", existingUser.ID),
				zap.Any("roles", missing),
			)
		}

		s.logger.Debug("User updated",
			zap.Int64("telegram_id", telegramID),
			zap.String("username", username),
		)

		return existingUser, nil
	}

	// Создаём нового пользователя, по умолчанию студент
	roles := []model.Role{model.RoleStudent}
	for _, r := range s.bootstrap[telegramID] {
		if r != model.RoleStudent {
			roles = append(roles, r)
		}
	}
	user := &model.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
		Roles:      roles,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("New user registered",
		zap.Int64("user_id", user.ID),
		zap.Int64("telegram_id", telegramID),
		zap.String("username", username),
		zap.Any("roles", roles),
	)

	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByTelegramID(ctx, telegramID)
}

// GetByID получает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// ActorByID строит Actor для идентификатора, переданного шлюзом аутентификации
func (s *UserService) ActorByID(ctx context.Context, id int64) (model.Actor, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return model.Actor{}, storageFailure(s.logger, "get actor", err)
	}
	if user == nil {
		return model.Actor{}, apperrors.Unauthorized("unknown actor")
	}
	return user.Actor(), nil
}

func (s *UserService) missingBootstrapRoles(user *model.User) []model.Role {
	var missing []model.Role
	for _, r := range s.bootstrap[user.TelegramID] {
		if !user.HasRole(r) {
			missing = append(missing, r)
		}
	}
	return missing
}
