package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository/base"
)

type userRepository struct {
	db base.DBTX
}

func NewUserRepository(db base.DBTX) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, telegram_id, username, first_name, last_name, roles, created_at`

// Create создаёт нового пользователя
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (telegram_id, username, first_name, last_name, roles)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		nullableTelegramID(user.TelegramID),
		user.Username,
		user.FirstName,
		user.LastName,
		toStrings(user.Roles),
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", ErrDuplicate)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// GetByID получает пользователя по ID
func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *userRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, telegramID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}

	return user, nil
}

// Update обновляет профиль пользователя (роли меняются через SetRoles)
func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET username = $1, first_name = $2, last_name = $3
		WHERE id = $4
	`

	affected, err := base.ExecAffected(ctx, r.db, query, user.Username, user.FirstName, user.LastName, user.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

func (r *userRepository) SetRoles(ctx context.Context, id int64, roles []model.Role) error {
	affected, err := base.ExecAffected(ctx, r.db, `UPDATE users SET roles = $1 WHERE id = $2`, toStrings(roles), id)
	if err != nil {
		return fmt.Errorf("set user roles: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		user       model.User
		telegramID *int64
		roles      []string
	)
	err := row.Scan(
		&user.ID,
		&telegramID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&roles,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if telegramID != nil {
		user.TelegramID = *telegramID
	}
	for _, r := range roles {
		if role, ok := model.ParseRole(r); ok {
			user.Roles = append(user.Roles, role)
		}
	}

	return &user, nil
}

// Пользователи из HTTP-шлюза могут не иметь Telegram
func nullableTelegramID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
