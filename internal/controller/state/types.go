package state

// UserState представляет текущее состояние пользователя в диалоге
type UserState string

const (
	StateNone UserState = "" // Нет активного состояния

	// Ожидаем причину отклонения оплаты
	StateRejectPaymentReason UserState = "reject_payment_reason"
	// Ожидаем причину смены преподавателя
	StateReassignReason UserState = "reassign_reason"
)

// Ключи временных данных диалога
const (
	KeyPaymentID = "payment_id"
	KeyMatchID   = "match_id"
	KeyTutorID   = "tutor_id"
)

// UserData хранит временные данные пользователя во время диалога
type UserData struct {
	State UserState
	Data  map[string]int64
}
