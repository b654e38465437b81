package handlers

import "context"

// contextKey ключ для значений в context запроса
type contextKey string

const (
	// UserIDKey владелец ресурсов, subject из JWT
	UserIDKey contextKey = "user_id"
	// UsernameKey имя пользователя из JWT
	UsernameKey contextKey = "username"
)

// GetUserID извлекает user_id из context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// GetUsername извлекает username из context
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}
