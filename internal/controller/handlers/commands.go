package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Freeeeeet/tutorflow/internal/controller/callbacks"
	"github.com/Freeeeeet/tutorflow/internal/controller/callbacks/common/formatting"
	"github.com/Freeeeeet/tutorflow/internal/controller/state"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/report"
	"github.com/Freeeeeet/tutorflow/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// кнопок отметки в одном сообщении
const sessionButtonsLimit = 10

type reply struct {
	text     string
	markup   *models.InlineKeyboardMarkup
	document *document
}

type document struct {
	name string
	data []byte
}

func (d *document) reader() io.Reader {
	return bytes.NewReader(d.data)
}

type command struct {
	usage string
	run   func(ctx context.Context, actor model.Actor, telegramID int64, args []string) (*reply, error)
}

func (h *Handlers) commandTable() map[string]command {
	return map[string]command{
		"help":       {"/help", h.cmdHelp},
		"cancel":     {"/cancel", h.cmdCancel},
		"request":    {"/request <часовой пояс> <предмет>", h.cmdRequest},
		"pay":        {"/pay <request_id> <8|12|20> <сумма в копейках> [референс]", h.cmdPay},
		"engagement": {"/engagement <request_id>", h.cmdEngagement},
		"queue":      {"/queue [статус]", h.cmdQueue},
		"verify":     {"/verify <payment_id>", h.cmdVerify},
		"reject":     {"/reject <payment_id> [причина]", h.cmdReject},
		"assign":     {"/assign <request_id> <tutor_id>", h.cmdAssign},
		"reassign":   {"/reassign <match_id> <tutor_id> [причина]", h.cmdReassign},
		"link":       {"/link <match_id> <https://...>", h.cmdLink},
		"pattern":    {"/pattern <match_id> <часовой пояс> <дни> <ЧЧ:ММ> <минуты>", h.cmdPattern},
		"generate":   {"/generate <match_id>", h.cmdGenerate},
		"sessions":   {"/sessions <match_id>", h.cmdSessions},
		"status":     {"/status <request_id> <session_id> <done|no_show_student|no_show_tutor|rescheduled> [заметка]", h.cmdStatus},
		"reschedule": {"/reschedule <session_id> <ГГГГ-ММ-ДД> <ЧЧ:ММ> [причина]", h.cmdReschedule},
		"export":     {"/export <match_id>", h.cmdExport},
		"pause":      {"/pause <match_id>", h.engagementStatus(model.MatchStatusPaused)},
		"resume":     {"/resume <match_id>", h.engagementStatus(model.MatchStatusActive)},
		"end":        {"/end <match_id>", h.engagementStatus(model.MatchStatusEnded)},
	}
}

// HandleMessage единая точка входа для текстовых сообщений: команды и ответы в диалогах
func (h *Handlers) HandleMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return
	}

	r := h.Dispatch(ctx, update.Message.From, update.Message.Text)
	h.send(ctx, b, update.Message.Chat.ID, r)
}

// Dispatch выполняет сообщение и возвращает ответ; nil если отвечать не нужно
func (h *Handlers) Dispatch(ctx context.Context, from *models.User, text string) *reply {
	name, args := splitCommand(text)
	if name == "" {
		return h.continueDialog(ctx, from.ID, text)
	}

	if name == "start" {
		return h.cmdStart(ctx, from)
	}

	cmd, ok := h.commands[name]
	if !ok {
		return &reply{text: "❓ Неизвестная команда. Список команд: /help"}
	}

	if err := h.allow(ctx, from.ID); err != nil {
		return replyFor(cmd, err)
	}
	actor, err := h.requireActor(ctx, from.ID)
	if err != nil {
		return replyFor(cmd, err)
	}

	h.logger.Debug("Command received",
		zap.String("command", name),
		zap.Int64("telegram_id", from.ID),
		zap.Int64("actor_id", actor.ID),
	)

	r, err := cmd.run(ctx, actor, from.ID, args)
	if err != nil {
		return replyFor(cmd, err)
	}
	return r
}

// cmdStart регистрирует пользователя
func (h *Handlers) cmdStart(ctx context.Context, from *models.User) *reply {
	user, err := h.userService.RegisterUser(ctx, from.ID, from.Username, from.FirstName, from.LastName)
	if err != nil {
		h.logger.Error("Failed to register user", zap.Error(err))
		return &reply{text: "❌ Произошла ошибка при регистрации. Попробуйте позже."}
	}

	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, string(r))
	}

	return &reply{text: fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Ваш ID: %d\n"+
			"Роли: %s\n\n"+
			"Список команд: /help",
		user.DisplayName(), user.ID, strings.Join(roles, ", "),
	)}
}

func (h *Handlers) cmdHelp(_ context.Context, actor model.Actor, _ int64, _ []string) (*reply, error) {
	var sb strings.Builder
	sb.WriteString("📚 Справка по командам:\n\n" +
		"Для учеников и родителей:\n" +
		"/request - Новая заявка\n" +
		"/pay - Сообщить об оплате пакета\n" +
		"/engagement - Состояние заявки\n")

	if actor.HasAnyRole(model.RoleTutor, model.RoleAdmin) {
		sb.WriteString("\nДля преподавателей:\n" +
			"/sessions - Занятия матча с кнопками отметки\n" +
			"/status - Отметить занятие\n" +
			"/reschedule - Перенести занятие\n")
	}
	if actor.HasRole(model.RoleAdmin) {
		sb.WriteString("\nДля администратора:\n" +
			"/queue - Очередь заявок\n" +
			"/verify, /reject - Подтвердить или отклонить оплату\n" +
			"/assign, /reassign - Назначить или сменить преподавателя\n" +
			"/link, /pattern - Ссылка на встречу и расписание\n" +
			"/generate - Создать занятия\n" +
			"/pause, /resume, /end - Управление матчем\n" +
			"/export - Выгрузка в Excel\n")
	}
	sb.WriteString("\n/cancel - Отменить текущий диалог")
	return &reply{text: sb.String()}, nil
}

// cmdCancel отмена текущего диалога
func (h *Handlers) cmdCancel(_ context.Context, _ model.Actor, telegramID int64, _ []string) (*reply, error) {
	if h.stateManager.GetState(telegramID) == state.StateNone {
		return &reply{text: "❌ Нет активных операций для отмены."}, nil
	}
	h.stateManager.ClearState(telegramID)
	return &reply{text: "✅ Операция отменена."}, nil
}

func (h *Handlers) cmdRequest(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) < 2 {
		return nil, usage(fmt.Errorf("укажите часовой пояс и предмет"))
	}
	req, err := h.engagement.CreateRequest(ctx, actor, service.CreateRequestInput{
		Timezone: args[0],
		Subject:  restText(args[1:]),
	})
	if err != nil {
		return nil, err
	}
	return &reply{text: fmt.Sprintf(
		"📝 Заявка #%d создана.\n\nОплатите пакет и сообщите: /pay %d <8|12|20> <сумма> [референс]",
		req.ID, req.ID,
	)}, nil
}

func (h *Handlers) cmdPay(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) < 3 {
		return nil, usage(fmt.Errorf("недостаточно аргументов"))
	}
	requestID, err := parseID(args[0], "request_id")
	if err != nil {
		return nil, usage(err)
	}
	tier, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, usage(fmt.Errorf("тариф должен быть числом"))
	}
	amount, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return nil, usage(fmt.Errorf("сумма должна быть целым числом"))
	}

	record, err := h.engagement.RecordPayment(ctx, actor, service.RecordPaymentInput{
		RequestID:   requestID,
		Tier:        tier,
		AmountCents: amount,
		Reference:   restText(args[3:]),
	})
	if err != nil {
		return nil, err
	}
	return &reply{text: fmt.Sprintf(
		"💳 Оплата #%d на %s записана, пакет на %d %s ждёт подтверждения администратора.",
		record.Payment.ID, formatting.FormatAmount(amount), tier, formatting.PluralizeSessions(tier),
	)}, nil
}

func (h *Handlers) cmdEngagement(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) != 1 {
		return nil, usage(fmt.Errorf("укажите request_id"))
	}
	requestID, err := parseID(args[0], "request_id")
	if err != nil {
		return nil, usage(err)
	}
	e, err := h.engagement.GetEngagement(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	return &reply{text: formatEngagement(e)}, nil
}

func (h *Handlers) cmdQueue(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	status := model.RequestStatusReadyToMatch
	if len(args) > 0 {
		parsed, err := model.ParseRequestStatus(args[0])
		if err != nil {
			return nil, usage(err)
		}
		status = parsed
	}

	requests, err := h.engagement.ListRequests(ctx, actor, status)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return &reply{text: fmt.Sprintf("📭 Нет заявок в статусе %s.", status)}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Заявки (%s):\n\n", status)
	for _, r := range requests {
		fmt.Fprintf(&sb, "#%d %s, %s, ученик %d\n", r.ID, r.Subject, r.Timezone, r.RequesterID)
	}
	return &reply{text: sb.String()}, nil
}

func (h *Handlers) cmdVerify(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) != 1 {
		return nil, usage(fmt.Errorf("укажите payment_id"))
	}
	paymentID, err := parseID(args[0], "payment_id")
	if err != nil {
		return nil, usage(err)
	}
	pkg, err := h.engagement.VerifyPayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	return &reply{text: fmt.Sprintf(
		"✅ Оплата подтверждена. Пакет #%d активен с %s по %s.\n\nНазначьте преподавателя: /assign %d <tutor_id>",
		pkg.ID, pkg.StartDate, pkg.LastDay(), pkg.RequestID,
	)}, nil
}

func (h *Handlers) cmdReject(ctx context.Context, actor model.Actor, telegramID int64, args []string) (*reply, error) {
	if len(args) < 1 {
		return nil, usage(fmt.Errorf("укажите payment_id"))
	}
	paymentID, err := parseID(args[0], "payment_id")
	if err != nil {
		return nil, usage(err)
	}
	if !actor.HasRole(model.RoleAdmin) {
		return h.rejectPayment(ctx, actor, paymentID, "")
	}

	reason := restText(args[1:])
	if reason == "" {
		h.stateManager.Begin(telegramID, state.StateRejectPaymentReason, map[string]int64{state.KeyPaymentID: paymentID})
		return &reply{text: "✍️ Напишите причину отклонения оплаты (или /cancel)."}, nil
	}
	return h.rejectPayment(ctx, actor, paymentID, reason)
}

func (h *Handlers) rejectPayment(ctx context.Context, actor model.Actor, paymentID int64, reason string) (*reply, error) {
	if err := h.engagement.RejectPayment(ctx, actor, paymentID, reason); err != nil {
		return nil, err
	}
	return &reply{text: fmt.Sprintf("🚫 Оплата #%d отклонена. Заявка снова ждёт оплаты.", paymentID)}, nil
}

func (h *Handlers) cmdAssign(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) != 2 {
		return nil, usage(fmt.Errorf("укажите request_id и tutor_id"))
	}
	requestID, err := parseID(args[0], "request_id")
	if err != nil {
		return nil, usage(err)
	}
	tutorID, err := parseID(args[1], "tutor_id")
	if err != nil {
		return nil, usage(err)
	}

	matchID, err := h.engagement.AssignTutor(ctx, actor, service.AssignTutorInput{RequestID: requestID, TutorID: tutorID})
	if err != nil {
		return nil, err
	}
	return &reply{text: fmt.Sprintf(
		"🤝 Матч #%d создан.\n\nДальше: /link %d <ссылка>, /pattern %d <пояс> <дни> <ЧЧ:ММ> <минуты>, затем /generate %d",
		matchID, matchID, matchID, matchID,
	)}, nil
}

func (h *Handlers) cmdReassign(ctx context.Context, actor model.Actor, telegramID int64, args []string) (*reply, error) {
	if len(args) < 2 {
		return nil, usage(fmt.Errorf("укажите match_id и tutor_id"))
	}
	matchID, err := parseID(args[0], "match_id")
	if err != nil {
		return nil, usage(err)
	}
	tutorID, err := parseID(args[1], "tutor_id")
	if err != nil {
		return nil, usage(err)
	}

	reason := restText(args[2:])
	if reason == "" && actor.HasRole(model.RoleAdmin) {
		h.stateManager.Begin(telegramID, state.StateReassignReason, map[string]int64{
			state.KeyMatchID: matchID,
			state.KeyTutorID: tutorID,
		})
		return &reply{text: "✍️ Напишите причину смены преподавателя (или /cancel)."}, nil
	}
	return h.reassign(ctx, actor, matchID, tutorID, reason)
}

func (h *Handlers) reassign(ctx context.Context, actor model.Actor, matchID, tutorID int64, reason string) (*reply, error) {
	if err := h.engagement.ReassignTutor(ctx, actor, matchID, tutorID, reason); err != nil {
		return nil, err
	}
	return &reply{text: fmt.Sprintf("🔄 Преподаватель матча #%d изменён. Занятия сохранены.", matchID)}, nil
}

func (h *Handlers) cmdLink(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) != 2 {
		return nil, usage(fmt.Errorf("укажите match_id и ссылку"))
	}
	matchID, err := parseID(args[0], "match_id")
	if err != nil {
		return nil, usage(err)
	}
	link := args[1]
	if err := h.engagement.UpdateMatchDetails(ctx, actor, matchID, &link, nil); err != nil {
		return nil, err
	}
	return &reply{text: fmt.Sprintf("🔗 Ссылка для матча #%d сохранена.", matchID)}, nil
}

func (h *Handlers) cmdPattern(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) != 5 {
		return nil, usage(fmt.Errorf("неверное число аргументов"))
	}
	matchID, err := parseID(args[0], "match_id")
	if err != nil {
		return nil, usage(err)
	}
	pattern, err := parsePattern(args[1:])
	if err != nil {
		return nil, usage(err)
	}
	if err := h.engagement.UpdateMatchDetails(ctx, actor, matchID, nil, pattern); err != nil {
		return nil, err
	}
	return &reply{text: fmt.Sprintf("🗓 Расписание матча #%d сохранено.", matchID)}, nil
}

func (h *Handlers) cmdGenerate(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) != 1 {
		return nil, usage(fmt.Errorf("укажите match_id"))
	}
	matchID, err := parseID(args[0], "match_id")
	if err != nil {
		return nil, usage(err)
	}
	res, err := h.engagement.GenerateSessions(ctx, actor, matchID)
	if err != nil {
		return nil, err
	}
	return &reply{text: fmt.Sprintf(
		"✅ Создано %d %s с %s по %s.\n\nСписок: /sessions %d",
		res.SessionCount, formatting.PluralizeSessions(res.SessionCount), res.RangeStart, res.RangeEnd, matchID,
	)}, nil
}

func (h *Handlers) cmdSessions(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) != 1 {
		return nil, usage(fmt.Errorf("укажите match_id"))
	}
	matchID, err := parseID(args[0], "match_id")
	if err != nil {
		return nil, usage(err)
	}

	match, err := h.engagement.GetMatch(ctx, actor, matchID)
	if err != nil {
		return nil, err
	}
	sessions, err := h.ledger.ListByMatch(ctx, actor, matchID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return &reply{text: fmt.Sprintf("📭 У матча #%d пока нет занятий.", matchID)}, nil
	}

	return &reply{
		text:   formatSessions(match, sessions),
		markup: callbacks.SessionKeyboard(match, sessions, sessionButtonsLimit),
	}, nil
}

func (h *Handlers) cmdStatus(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) < 3 {
		return nil, usage(fmt.Errorf("недостаточно аргументов"))
	}
	requestID, err := parseID(args[0], "request_id")
	if err != nil {
		return nil, usage(err)
	}
	sessionID, err := parseID(args[1], "session_id")
	if err != nil {
		return nil, usage(err)
	}
	status, err := parseSessionStatus(args[2])
	if err != nil {
		return nil, usage(err)
	}

	var notes *string
	if text := restText(args[3:]); text != "" {
		notes = &text
	}

	res, err := h.ledger.UpdateStatus(ctx, actor, sessionID, requestID, status, notes)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("✅ Занятие #%d: %s", res.Session.ID, res.Session.Status)
	if res.Package != nil {
		text += fmt.Sprintf("\n💳 Использовано %d из %d", res.Package.SessionsUsed, res.Package.TierSessions)
	}
	return &reply{text: text}, nil
}

// cmdReschedule время указывается в поясе шаблона матча, длительность сохраняется
func (h *Handlers) cmdReschedule(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) < 3 {
		return nil, usage(fmt.Errorf("недостаточно аргументов"))
	}
	sessionID, err := parseID(args[0], "session_id")
	if err != nil {
		return nil, usage(err)
	}

	session, err := h.ledger.Get(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	match, err := h.engagement.GetMatch(ctx, actor, session.MatchID)
	if err != nil {
		return nil, err
	}
	loc := matchLocation(match)

	start, err := parseLocalStart(args[1], args[2], loc)
	if err != nil {
		return nil, usage(err)
	}
	end := start.Add(session.ScheduledEndUTC.Sub(session.ScheduledStartUTC))

	res, err := h.ledger.Reschedule(ctx, actor, sessionID, start.UTC(), end.UTC(), restText(args[3:]))
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("🔁 Занятие #%d перенесено на %s %s.",
		sessionID, formatting.FormatDateTime(start), loc)
	if res.LateReschedule {
		text += "\n⚠️ Поздний перенос: до занятия меньше суток."
	}
	return &reply{text: text}, nil
}

func (h *Handlers) cmdExport(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
	if len(args) != 1 {
		return nil, usage(fmt.Errorf("укажите match_id"))
	}
	matchID, err := parseID(args[0], "match_id")
	if err != nil {
		return nil, usage(err)
	}

	match, err := h.engagement.GetMatch(ctx, actor, matchID)
	if err != nil {
		return nil, err
	}
	e, err := h.engagement.GetEngagement(ctx, actor, match.RequestID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := report.WriteLedger(&buf, report.Ledger{
		Request:  e.Request,
		Match:    e.Match,
		Packages: e.Packages,
		Sessions: e.Sessions,
	}); err != nil {
		h.logger.Error("Failed to build ledger export", zap.Int64("match_id", matchID), zap.Error(err))
		return nil, err
	}

	return &reply{
		text:     fmt.Sprintf("📊 Журнал занятий матча #%d", matchID),
		document: &document{name: report.FileName(matchID, h.now()), data: buf.Bytes()},
	}, nil
}

func (h *Handlers) engagementStatus(to model.MatchStatus) func(context.Context, model.Actor, int64, []string) (*reply, error) {
	return func(ctx context.Context, actor model.Actor, _ int64, args []string) (*reply, error) {
		if len(args) != 1 {
			return nil, usage(fmt.Errorf("укажите match_id"))
		}
		matchID, err := parseID(args[0], "match_id")
		if err != nil {
			return nil, usage(err)
		}
		if err := h.engagement.SetEngagementStatus(ctx, actor, matchID, to); err != nil {
			return nil, err
		}
		return &reply{text: fmt.Sprintf("✅ Матч #%d: %s", matchID, to)}, nil
	}
}

// continueDialog обрабатывает текст в зависимости от состояния пользователя
func (h *Handlers) continueDialog(ctx context.Context, telegramID int64, text string) *reply {
	if h.stateManager.GetState(telegramID) == state.StateNone {
		return nil
	}
	actor, err := h.requireActor(ctx, telegramID)
	if err != nil {
		h.stateManager.ClearState(telegramID)
		return &reply{text: "❌ Пользователь не найден. Используйте /start для регистрации."}
	}

	st, data := h.stateManager.Take(telegramID)
	reason := strings.TrimSpace(text)

	var r *reply
	switch st {
	case state.StateRejectPaymentReason:
		r, err = h.rejectPayment(ctx, actor, data[state.KeyPaymentID], reason)
	case state.StateReassignReason:
		r, err = h.reassign(ctx, actor, data[state.KeyMatchID], data[state.KeyTutorID], reason)
	default:
		return nil
	}
	if err != nil {
		return replyFor(command{}, err)
	}
	return r
}
