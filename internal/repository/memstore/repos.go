package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository"
)

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *model.User) error {
	defer r.s.lock()()

	if user.TelegramID != 0 {
		for _, u := range r.s.users {
			if u.TelegramID == user.TelegramID {
				return fmt.Errorf("create user: %w", repository.ErrDuplicate)
			}
		}
	}

	user.ID = r.s.nextID()
	user.CreatedAt = r.s.now()
	stored := *user
	stored.Roles = slices.Clone(user.Roles)
	r.s.users[user.ID] = stored
	return nil
}

func (r userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	defer r.s.lock()()

	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	u.Roles = slices.Clone(u.Roles)
	return &u, nil
}

func (r userRepo) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	defer r.s.lock()()

	for _, u := range r.s.users {
		if u.TelegramID == telegramID {
			u.Roles = slices.Clone(u.Roles)
			return &u, nil
		}
	}
	return nil, nil
}

func (r userRepo) Update(_ context.Context, user *model.User) error {
	defer r.s.lock()()

	u, ok := r.s.users[user.ID]
	if !ok {
		return fmt.Errorf("user not found")
	}
	u.Username, u.FirstName, u.LastName = user.Username, user.FirstName, user.LastName
	r.s.users[u.ID] = u
	return nil
}

func (r userRepo) SetRoles(_ context.Context, id int64, roles []model.Role) error {
	defer r.s.lock()()

	u, ok := r.s.users[id]
	if !ok {
		return fmt.Errorf("user not found")
	}
	u.Roles = slices.Clone(roles)
	r.s.users[id] = u
	return nil
}

type requestRepo struct{ s *Store }

func (r requestRepo) Create(_ context.Context, req *model.Request) error {
	defer r.s.lock()()

	now := r.s.now()
	req.ID = r.s.nextID()
	req.CreatedAt, req.UpdatedAt = now, now
	r.s.requests[req.ID] = *req
	return nil
}

func (r requestRepo) GetByID(_ context.Context, id int64) (*model.Request, error) {
	defer r.s.lock()()

	req, ok := r.s.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r requestRepo) ListByStatus(_ context.Context, status model.RequestStatus) ([]*model.Request, error) {
	defer r.s.lock()()

	var out []*model.Request
	for _, req := range r.s.requests {
		if req.Status == status {
			out = append(out, &req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r requestRepo) UpdateStatus(_ context.Context, id int64, from []model.RequestStatus, to model.RequestStatus) error {
	defer r.s.lock()()

	req, ok := r.s.requests[id]
	if !ok || !in(from, req.Status) {
		return fmt.Errorf("request %d to %s: %w", id, to, repository.ErrStatusConflict)
	}
	req.Status = to
	req.UpdatedAt = r.s.now()
	r.s.requests[id] = req
	return nil
}

type packageRepo struct{ s *Store }

func (r packageRepo) Create(_ context.Context, pkg *model.Package) error {
	defer r.s.lock()()

	if pkg.Status == model.PackageStatusActive && r.hasActive(pkg.RequestID) {
		return fmt.Errorf("create package: %w", repository.ErrDuplicate)
	}

	now := r.s.now()
	pkg.ID = r.s.nextID()
	pkg.CreatedAt, pkg.UpdatedAt = now, now
	r.s.packages[pkg.ID] = *pkg
	return nil
}

func (r packageRepo) GetByID(_ context.Context, id int64) (*model.Package, error) {
	defer r.s.lock()()

	pkg, ok := r.s.packages[id]
	if !ok {
		return nil, nil
	}
	return &pkg, nil
}

func (r packageRepo) ListByRequest(_ context.Context, requestID int64) ([]*model.Package, error) {
	defer r.s.lock()()
	return r.filter(func(p model.Package) bool { return p.RequestID == requestID }), nil
}

func (r packageRepo) ListActiveByRequest(_ context.Context, requestID int64) ([]*model.Package, error) {
	defer r.s.lock()()
	return r.filter(func(p model.Package) bool {
		return p.RequestID == requestID && p.Status == model.PackageStatusActive
	}), nil
}

func (r packageRepo) Activate(_ context.Context, id int64, start, end model.Date) error {
	defer r.s.lock()()

	pkg, ok := r.s.packages[id]
	if !ok || pkg.Status != model.PackageStatusPending {
		return fmt.Errorf("package %d to active: %w", id, repository.ErrStatusConflict)
	}
	if r.hasActive(pkg.RequestID) {
		return fmt.Errorf("activate package: %w", repository.ErrDuplicate)
	}
	pkg.Status = model.PackageStatusActive
	pkg.StartDate, pkg.EndDate = start, end
	pkg.UpdatedAt = r.s.now()
	r.s.packages[id] = pkg
	return nil
}

func (r packageRepo) IncrementSessionsUsed(_ context.Context, requestID int64) (*model.Package, error) {
	defer r.s.lock()()

	for id, pkg := range r.s.packages {
		if pkg.RequestID != requestID || pkg.Status != model.PackageStatusActive {
			continue
		}
		if pkg.SessionsUsed >= int(pkg.TierSessions) {
			return nil, repository.ErrNoEntitlement
		}
		pkg.SessionsUsed++
		pkg.UpdatedAt = r.s.now()
		r.s.packages[id] = pkg
		return &pkg, nil
	}
	return nil, repository.ErrNoEntitlement
}

func (r packageRepo) ExpireEnded(_ context.Context, now time.Time) ([]*model.Package, error) {
	defer r.s.lock()()

	expired := r.filter(func(p model.Package) bool {
		if p.Status != model.PackageStatusActive {
			return false
		}
		req, ok := r.s.requests[p.RequestID]
		if !ok {
			return false
		}
		// дата окна задана в поясе заявки
		today := model.DateOf(now.In(req.Location()))
		return !p.EndDate.After(today)
	})
	for _, pkg := range expired {
		pkg.Status = model.PackageStatusExpired
		pkg.UpdatedAt = r.s.now()
		r.s.packages[pkg.ID] = *pkg
	}
	return expired, nil
}

func (r packageRepo) hasActive(requestID int64) bool {
	for _, p := range r.s.packages {
		if p.RequestID == requestID && p.Status == model.PackageStatusActive {
			return true
		}
	}
	return false
}

func (r packageRepo) filter(keep func(model.Package) bool) []*model.Package {
	var out []*model.Package
	for _, p := range r.s.packages {
		if keep(p) {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(_ context.Context, payment *model.Payment) error {
	defer r.s.lock()()

	for _, p := range r.s.payments {
		if p.PackageID == payment.PackageID {
			return fmt.Errorf("create payment: %w", repository.ErrDuplicate)
		}
	}
	payment.ID = r.s.nextID()
	payment.CreatedAt = r.s.now()
	r.s.payments[payment.ID] = *payment
	return nil
}

func (r paymentRepo) GetByID(_ context.Context, id int64) (*model.Payment, error) {
	defer r.s.lock()()

	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r paymentRepo) GetByPackageID(_ context.Context, packageID int64) (*model.Payment, error) {
	defer r.s.lock()()

	for _, p := range r.s.payments {
		if p.PackageID == packageID {
			return &p, nil
		}
	}
	return nil, nil
}

func (r paymentRepo) MarkPaid(ctx context.Context, id, verifiedBy int64, at time.Time) error {
	return r.resolve(id, model.PaymentStatusPaid, verifiedBy, at)
}

func (r paymentRepo) Reject(ctx context.Context, id, verifiedBy int64, at time.Time) error {
	return r.resolve(id, model.PaymentStatusRejected, verifiedBy, at)
}

func (r paymentRepo) resolve(id int64, to model.PaymentStatus, verifiedBy int64, at time.Time) error {
	defer r.s.lock()()

	p, ok := r.s.payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return fmt.Errorf("payment %d to %s: %w", id, to, repository.ErrStatusConflict)
	}
	p.Status = to
	p.VerifiedBy = &verifiedBy
	p.VerifiedAt = &at
	r.s.payments[id] = p
	return nil
}

type matchRepo struct{ s *Store }

func (r matchRepo) Create(_ context.Context, match *model.Match) error {
	defer r.s.lock()()

	for _, m := range r.s.matches {
		if m.RequestID == match.RequestID {
			return fmt.Errorf("create match: %w", repository.ErrDuplicate)
		}
	}

	now := r.s.now()
	match.ID = r.s.nextID()
	match.CreatedAt, match.UpdatedAt = now, now
	r.s.matches[match.ID] = *cloneMatch(*match)
	return nil
}

func (r matchRepo) GetByID(_ context.Context, id int64) (*model.Match, error) {
	defer r.s.lock()()

	m, ok := r.s.matches[id]
	if !ok {
		return nil, nil
	}
	return cloneMatch(m), nil
}

func (r matchRepo) GetByRequestID(_ context.Context, requestID int64) (*model.Match, error) {
	defer r.s.lock()()

	for _, m := range r.s.matches {
		if m.RequestID == requestID {
			return cloneMatch(m), nil
		}
	}
	return nil, nil
}

func (r matchRepo) ListByTutor(_ context.Context, tutorID int64) ([]*model.Match, error) {
	defer r.s.lock()()

	var out []*model.Match
	for _, m := range r.s.matches {
		if m.TutorID == tutorID {
			out = append(out, cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r matchRepo) UpdateStatus(_ context.Context, id int64, from []model.MatchStatus, to model.MatchStatus) error {
	defer r.s.lock()()

	m, ok := r.s.matches[id]
	if !ok || !in(from, m.Status) {
		return fmt.Errorf("match %d to %s: %w", id, to, repository.ErrStatusConflict)
	}
	m.Status = to
	m.UpdatedAt = r.s.now()
	r.s.matches[id] = m
	return nil
}

func (r matchRepo) UpdateTutor(_ context.Context, id, tutorID int64) error {
	defer r.s.lock()()

	m, ok := r.s.matches[id]
	if !ok || m.Status == model.MatchStatusEnded {
		return fmt.Errorf("match %d tutor: %w", id, repository.ErrStatusConflict)
	}
	m.TutorID = tutorID
	m.UpdatedAt = r.s.now()
	r.s.matches[id] = m
	return nil
}

func (r matchRepo) UpdateDetails(_ context.Context, id int64, meetLink *string, pattern *model.SchedulePattern) error {
	defer r.s.lock()()

	m, ok := r.s.matches[id]
	if !ok || m.Status == model.MatchStatusEnded {
		return fmt.Errorf("match %d details: %w", id, repository.ErrStatusConflict)
	}
	if pattern != nil && m.Status != model.MatchStatusMatched {
		return fmt.Errorf("match %d pattern: %w", id, repository.ErrStatusConflict)
	}
	if meetLink != nil {
		link := *meetLink
		m.MeetLink = &link
	}
	if pattern != nil {
		m.SchedulePattern = clonePattern(pattern)
	}
	m.UpdatedAt = r.s.now()
	r.s.matches[id] = m
	return nil
}

func cloneMatch(m model.Match) *model.Match {
	m.SchedulePattern = clonePattern(m.SchedulePattern)
	if m.MeetLink != nil {
		link := *m.MeetLink
		m.MeetLink = &link
	}
	return &m
}

func clonePattern(p *model.SchedulePattern) *model.SchedulePattern {
	if p == nil {
		return nil
	}
	normalized := p.Normalized()
	return &normalized
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) CreateGeneration(_ context.Context, gen *model.SessionGeneration) error {
	defer r.s.lock()()

	for _, g := range r.s.generations {
		if g.MatchID == gen.MatchID {
			return fmt.Errorf("create session generation: %w", repository.ErrDuplicate)
		}
	}
	gen.CreatedAt = r.s.now()
	r.s.generations[gen.ID] = *gen
	return nil
}

func (r sessionRepo) GetGeneration(_ context.Context, matchID int64) (*model.SessionGeneration, error) {
	defer r.s.lock()()

	for _, g := range r.s.generations {
		if g.MatchID == matchID {
			return &g, nil
		}
	}
	return nil, nil
}

func (r sessionRepo) CreateBatch(_ context.Context, sessions []*model.Session) error {
	defer r.s.lock()()

	for _, s := range sessions {
		if _, ok := r.s.generations[s.GenerationID]; !ok {
			return fmt.Errorf("create session: unknown generation %s", s.GenerationID)
		}
	}

	now := r.s.now()
	for _, s := range sessions {
		s.ID = r.s.nextID()
		s.CreatedAt, s.UpdatedAt = now, now
		r.s.sessions[s.ID] = *s
	}
	return nil
}

func (r sessionRepo) CountByMatch(_ context.Context, matchID int64) (int, error) {
	defer r.s.lock()()

	count := 0
	for _, s := range r.s.sessions {
		if s.MatchID == matchID {
			count++
		}
	}
	return count, nil
}

func (r sessionRepo) GetByID(_ context.Context, id int64) (*model.Session, error) {
	defer r.s.lock()()

	s, ok := r.s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r sessionRepo) ListByMatch(_ context.Context, matchID int64) ([]*model.Session, error) {
	defer r.s.lock()()

	var out []*model.Session
	for _, s := range r.s.sessions {
		if s.MatchID == matchID {
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledStartUTC.Equal(out[j].ScheduledStartUTC) {
			return out[i].ScheduledStartUTC.Before(out[j].ScheduledStartUTC)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r sessionRepo) UpdateStatus(_ context.Context, id int64, from []model.SessionStatus, to model.SessionStatus, notes *string) error {
	defer r.s.lock()()

	s, ok := r.s.sessions[id]
	if !ok || !in(from, s.Status) {
		return fmt.Errorf("session %d to %s: %w", id, to, repository.ErrStatusConflict)
	}
	s.Status = to
	if notes != nil {
		n := *notes
		s.Notes = &n
	}
	s.UpdatedAt = r.s.now()
	r.s.sessions[id] = s
	return nil
}

func (r sessionRepo) Reschedule(_ context.Context, id int64, from []model.SessionStatus, start, end time.Time) error {
	defer r.s.lock()()

	s, ok := r.s.sessions[id]
	if !ok || !in(from, s.Status) {
		return fmt.Errorf("session %d reschedule: %w", id, repository.ErrStatusConflict)
	}
	s.Status = model.SessionStatusRescheduled
	s.ScheduledStartUTC, s.ScheduledEndUTC = start.UTC(), end.UTC()
	s.UpdatedAt = r.s.now()
	r.s.sessions[id] = s
	return nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Append(_ context.Context, entry *model.AuditLogEntry) error {
	defer r.s.lock()()

	entry.ID = r.s.nextID()
	entry.CreatedAt = r.s.now()
	r.s.auditLogs = append(r.s.auditLogs, *entry)
	return nil
}

func (r auditRepo) ListByEntity(_ context.Context, entityType model.EntityType, entityID int64) ([]*model.AuditLogEntry, error) {
	defer r.s.lock()()

	var out []*model.AuditLogEntry
	for _, e := range r.s.auditLogs {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, &e)
		}
	}
	return out, nil
}
