package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/field-worklog-bot/internal/chat"
	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/obs"
	"github.com/field-worklog-bot/internal/repository"
	"github.com/field-worklog-bot/internal/service"
	"github.com/rs/zerolog"
)

// Universal tokens, accepted in every state
const (
	TokenStart  = "start"
	TokenBack   = "back"
	TokenCancel = "cancel"
)

const failureNotice = "Something went wrong, please try again."

// Deps carries the collaborators of the state machine
type Deps struct {
	Reference repository.ReferenceRepository
	Reports   service.ReportService
	Users     service.UserService
	Sync      service.SyncService
	Renderer  *chat.Renderer
	Notifier  Notifier
	// Location is the timezone of users without their own
	Location *time.Location
}

// Machine owns every live session. It is not safe for concurrent use: all
// events must come through one Loop.
type Machine struct {
	refs     repository.ReferenceRepository
	reports  service.ReportService
	users    service.UserService
	sync     service.SyncService
	renderer *chat.Renderer
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
	async    func(func())
	log      zerolog.Logger

	sessions map[chat.Key]*Session
	// work queued by the current event, started once its screen is shown
	deferred []func()
}

// NewMachine creates the state machine
func NewMachine(d Deps, log zerolog.Logger) *Machine {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Machine{
		refs:     d.Reference,
		reports:  d.Reports,
		users:    d.Users,
		sync:     d.Sync,
		renderer: d.Renderer,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
		async:    func(f func()) { go f() },
		log:      log.With().Str("component", "dialog").Logger(),
		sessions: make(map[chat.Key]*Session),
	}
}

// SetClock replaces the time source
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// SetAsync replaces how background work (manual exports) is started
func (m *Machine) SetAsync(run func(func())) {
	m.async = run
}

// SessionState returns the state of a live session
func (m *Machine) SessionState(key chat.Key) (State, bool) {
	s, ok := m.sessions[key]
	if !ok {
		return StateStart, false
	}
	return s.State, true
}

// Handle processes one inbound event and renders the resulting screen.
// Recoverable failures become guidance on the screen; only transport and
// storage failures are returned.
func (m *Machine) Handle(ctx context.Context, ev *models.ChatEvent) error {
	key := chat.Key{ChatID: ev.ChatID, UserID: ev.UserID}
	user, err := m.users.Identify(ctx, ev)
	if err != nil {
		err = fmt.Errorf("identify user %d: %w", ev.UserID, err)
		// the session is left alone; without a user only a retry can be offered
		msg := chat.Message{Text: failureNotice, Keyboard: [][]chat.Button{{{Label: "Try again", Token: TokenStart}}}}
		if _, renderErr := m.renderer.Render(ctx, key, msg); renderErr != nil {
			return errors.Join(err, fmt.Errorf("render failure notice: %w", renderErr))
		}
		return err
	}
	m.deferred = m.deferred[:0]

	s, err := m.dispatch(ctx, key, user, ev)
	var lost *models.StateLossError
	if errors.As(err, &lost) {
		obs.ChatEvent("state_lost")
		m.log.Info().Str("key", key.String()).Msg("Event without session, starting over")
		s = m.reset(key, user)
		s.Notice = "This conversation has expired. Let's start over."
		err = nil
	}
	if err != nil {
		err = m.absorb(s, err)
	}
	if err != nil {
		m.log.Error().Err(err).Str("key", key.String()).Str("state", s.State.String()).Msg("Event handling failed")
		s.Notice = failureNotice
	}

	if renderErr := m.show(ctx, s); renderErr != nil {
		return fmt.Errorf("render %s: %w", s.State, renderErr)
	}
	for _, f := range m.deferred {
		m.async(f)
	}
	return err
}

// dispatch routes the event to the current state and returns the session to render
func (m *Machine) dispatch(ctx context.Context, key chat.Key, user *models.User, ev *models.ChatEvent) (*Session, error) {
	token := strings.TrimSpace(ev.Choice)
	text := strings.TrimSpace(ev.Text)

	if token == TokenStart || text == "/start" {
		return m.reset(key, user), nil
	}
	if value, ok := strings.CutPrefix(token, "menu:"); ok {
		s := m.reset(key, user)
		return s, m.onMenu(ctx, s, value)
	}

	s, ok := m.sessions[key]
	if !ok {
		return nil, &models.StateLossError{ChatID: key.ChatID, UserID: key.UserID}
	}
	s.User = user

	switch token {
	case TokenCancel:
		m.finish(s, "Cancelled.")
		return s, nil
	case TokenBack:
		m.back(s)
		return s, nil
	}

	if textStates[s.State] {
		if text == "" {
			return s, &models.ValidationError{Message: "Please type your answer."}
		}
		return s, m.onText(ctx, s, text)
	}
	if token == "" {
		return s, &models.ValidationError{Message: "Please use the buttons below."}
	}
	prefix, value, _ := strings.Cut(token, ":")
	return s, m.onChoice(ctx, s, prefix, value)
}

// absorb turns domain errors into guidance; anything else is returned
func (m *Machine) absorb(s *Session, err error) error {
	var verr *models.ValidationError
	var ownErr *models.OwnershipError
	switch {
	case errors.As(err, &verr):
		obs.ChatEvent("rejected")
		s.Notice = capitalize(verr.Message)
		return nil
	case errors.As(err, &ownErr):
		notice := "You can't change this report: " + ownErr.Reason + "."
		if s.State == StateMyReports {
			s.Notice = notice
		} else {
			m.finish(s, notice)
		}
		return nil
	case errors.Is(err, models.ErrReportNotFound):
		m.finish(s, "This report no longer exists.")
		return nil
	}
	return err
}

// reset replaces any session of key with a fresh one at the start screen
func (m *Machine) reset(key chat.Key, user *models.User) *Session {
	s := &Session{Key: key, User: user, State: StateStart}
	m.sessions[key] = s
	return s
}

// finish clears the session; s is left at the start screen for one last render
func (m *Machine) finish(s *Session, notice string) {
	delete(m.sessions, s.Key)
	*s = Session{Key: s.Key, User: s.User, State: StateStart, Notice: notice}
}

// back moves to the predecessor of the current state
func (m *Machine) back(s *Session) {
	switch s.Mode {
	case ModeEditQueue:
		switch s.State {
		case StateStart, StateMyReports:
			s.State = StateStart
		case StateReportActions:
			s.State = StateMyReports
		case StateDeleteConfirm, StateEditSelect:
			s.State = StateReportActions
		default:
			// fields already saved stay saved; the rest of the queue is dropped
			s.Queue = nil
			if len(s.Done) > 0 {
				s.Notice = "Already saved: " + joinFields(s.Done) + "."
			}
			s.State = StateEditSelect
		}
	case ModeConfirmEdit:
		if s.State != StateConfirmEdit {
			s.State = StateConfirmEdit
			return
		}
		s.State = firstMissing(&s.Draft)
		if s.State == StateConfirm {
			s.Mode = ModeNew
		}
	default:
		s.State = predecessor(s.State, &s.Draft)
	}
}

// accept hands over once the current state's field is in the draft
func (m *Machine) accept(ctx context.Context, s *Session) error {
	switch s.Mode {
	case ModeEditQueue:
		return m.commitField(ctx, s)
	case ModeConfirmEdit:
		s.State = firstMissing(&s.Draft)
		if s.State == StateConfirm {
			s.Mode = ModeNew
		}
	default:
		s.State = successor(s.State, &s.Draft)
	}
	return nil
}

func (m *Machine) show(ctx context.Context, s *Session) error {
	msg, err := m.screen(ctx, s)
	if err != nil {
		return err
	}
	s.Notice = ""
	_, err = m.renderer.Render(ctx, s.Key, msg)
	return err
}

// today is the current date in the user's timezone, as a UTC midnight
func (m *Machine) today(u *models.User) time.Time {
	now := m.now().In(u.Location(m.loc))
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// dateChoices are the work dates offered: today and the two days before
func (m *Machine) dateChoices(u *models.User) []time.Time {
	today := m.today(u)
	return []time.Time{today, today.AddDate(0, 0, -1), today.AddDate(0, 0, -2)}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func joinFields(fields []models.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return strings.Join(names, ", ")
}
