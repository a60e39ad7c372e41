package model

import "time"

// Role роль пользователя
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleTutor, RoleStudent, RoleParent:
		return r, true
	}
	return "", false
}

type User struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Roles      []Role    `json:"roles"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u *User) HasRole(role Role) bool {
	return contains(u.Roles, role)
}

// Actor returns the identity the core operations are authorized against.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Roles: append([]Role(nil), u.Roles...)}
}

// DisplayName имя для сообщений бота
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	}
	return "user"
}

// Actor аутентифицированный инициатор операции.
// Передаётся явно в каждую операцию ядра.
type Actor struct {
	ID    int64  `json:"id"`
	Roles []Role `json:"roles"`
}

// SystemActor используется фоновыми задачами
var SystemActor = Actor{ID: 0, Roles: []Role{RoleAdmin}}

func (a Actor) HasRole(role Role) bool {
	return contains(a.Roles, role)
}

func (a Actor) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}
