package callbacks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Freeeeeet/tutorflow/internal/controller/callbacks/common/keyboard"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/go-telegram/bot/models"
)

// ========================
// Callback Data Patterns
// ========================

// SessionAction = "sess:<code>:<session_id>:<request_id>", например sess:d:15:3
const SessionAction = "sess:"

const Noop = "noop"

var actionCodes = map[model.SessionStatus]string{
	model.SessionStatusDone:          "d",
	model.SessionStatusNoShowStudent: "ns",
	model.SessionStatusNoShowTutor:   "nt",
}

// SessionStatusAction разобранная кнопка смены статуса занятия
type SessionStatusAction struct {
	SessionID int64
	RequestID int64
	Status    model.SessionStatus
}

func EncodeSessionAction(a SessionStatusAction) string {
	return fmt.Sprintf("%s%s:%d:%d", SessionAction, actionCodes[a.Status], a.SessionID, a.RequestID)
}

func DecodeSessionAction(data string) (SessionStatusAction, error) {
	parts := strings.Split(strings.TrimPrefix(data, SessionAction), ":")
	if !strings.HasPrefix(data, SessionAction) || len(parts) != 3 {
		return SessionStatusAction{}, fmt.Errorf("invalid callback data format %q", data)
	}

	var status model.SessionStatus
	for s, code := range actionCodes {
		if code == parts[0] {
			status = s
		}
	}
	if status == "" {
		return SessionStatusAction{}, fmt.Errorf("unknown session action %q", parts[0])
	}

	sessionID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return SessionStatusAction{}, fmt.Errorf("parse session id: %w", err)
	}
	requestID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return SessionStatusAction{}, fmt.Errorf("parse request id: %w", err)
	}
	return SessionStatusAction{SessionID: sessionID, RequestID: requestID, Status: status}, nil
}

// SessionKeyboard кнопки отметки для первых limit незавершённых занятий матча
// и ссылка на встречу последним рядом
func SessionKeyboard(match *model.Match, sessions []*model.Session, limit int) *models.InlineKeyboardMarkup {
	requestID := match.RequestID
	kb := keyboard.NewBuilder()
	for _, s := range sessions {
		if s.Status.IsTerminal() {
			continue
		}
		if kb.Len() >= limit {
			break
		}
		action := func(status model.SessionStatus) string {
			return EncodeSessionAction(SessionStatusAction{SessionID: s.ID, RequestID: requestID, Status: status})
		}
		kb.Row(
			keyboard.Button(fmt.Sprintf("#%d", s.ID), Noop),
			keyboard.Button("✅", action(model.SessionStatusDone)),
			keyboard.Button("🚫 ученик", action(model.SessionStatusNoShowStudent)),
			keyboard.Button("⚠️ преп.", action(model.SessionStatusNoShowTutor)),
		)
	}
	if kb.Len() > 0 && match.MeetLink != nil {
		kb.Row(keyboard.URLButton("🔗 Встреча", *match.MeetLink))
	}
	return kb.Build()
}
