// Package session ties the alert pipeline together for one signed-in user. A Session is
// opened when the alert view is entered and closed when it is left.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/linesmerrill/planner-alerts/feed"
	"github.com/linesmerrill/planner-alerts/grouping"
	"github.com/linesmerrill/planner-alerts/models"
	"github.com/linesmerrill/planner-alerts/push"
	"github.com/linesmerrill/planner-alerts/reconciler"
)

// DefaultRefreshSpec resyncs with the backend every five minutes.
const DefaultRefreshSpec = "@every 5m"

// DefaultNotificationTitle is used for local notifications of new alerts.
const DefaultNotificationTitle = "New alert"

// Registrar obtains this installation's push token.
type Registrar interface {
	Register(ctx context.Context, ownerID string) (*models.DeviceToken, error)
}

// TokenSink persists device tokens on behalf of the account.
type TokenSink interface {
	SaveToken(ctx context.Context, token models.DeviceToken) error
}

// Notifier schedules local notifications.
type Notifier interface {
	ScheduleLocal(title, body string, data map[string]interface{}, delay time.Duration) string
}

// NotificationHost delivers notifications the device received and the user's responses
// to them. push.Host satisfies it.
type NotificationHost interface {
	AddNotificationListener(l push.NotificationListener) (remove func())
}

// Deps are the collaborators a session runs on. Store and Source are required.
type Deps struct {
	Store         reconciler.Store
	Source        feed.Source
	Registrar     Registrar
	Tokens        TokenSink
	Notifier      Notifier
	Notifications NotificationHost
}

// Options tune a session.
type Options struct {
	OwnerID           string
	RefreshSpec       string
	Projector         grouping.Projector
	NotificationTitle string
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	// OnNotificationResponse is called when the user acts on a delivered notification.
	OnNotificationResponse func(push.Response)
}

// Session is the live alert view of one user.
type Session struct {
	ownerID   string
	rec       *reconciler.Reconciler
	sub       *feed.Subscription
	cron      *cron.Cron
	projector grouping.Projector
	title     string
	notifier  Notifier

	onResponse     func(push.Response)
	removeListener func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu           sync.Mutex
	token        *models.DeviceToken
	notification *push.Notification
}

// Open subscribes to the owner's feed, loads the current alerts, starts push registration
// and the periodic refresh. A failed load does not fail Open; it is reported by LoadErr.
func Open(ctx context.Context, deps Deps, opts Options) (*Session, error) {
	if opts.OwnerID == "" {
		return nil, errors.New("session: owner id is required")
	}
	if deps.Store == nil || deps.Source == nil {
		return nil, errors.New("session: store and feed source are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ownerID:   opts.OwnerID,
		rec:       reconciler.New(opts.OwnerID, deps.Store),
		projector: opts.Projector,
		title:     opts.NotificationTitle,
		notifier:  deps.Notifier,
		cancel:    cancel,

		onResponse: opts.OnNotificationResponse,
	}
	if s.title == "" {
		s.title = DefaultNotificationTitle
	}

	listener := feed.NewListener(deps.Source)
	if opts.InitialBackoff > 0 {
		listener.InitialBackoff = opts.InitialBackoff
	}
	if opts.MaxBackoff > 0 {
		listener.MaxBackoff = opts.MaxBackoff
	}
	listener.OnReconnect = func(string) {
		s.goRefresh(ctx)
	}

	sub, err := listener.Subscribe(ctx, opts.OwnerID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("session: %w", err)
	}
	s.sub = sub

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.rec.Run(ctx, sub.Alerts(), s.onNewAlert)
	}()

	_ = s.Refresh(ctx)

	if deps.Notifications != nil {
		s.removeListener = deps.Notifications.AddNotificationListener(push.NotificationListener{
			Received: s.onNotification,
			Response: s.onNotificationResponse,
		})
	}

	if deps.Registrar != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.registerPush(ctx, deps.Registrar, deps.Tokens)
		}()
	}

	spec := opts.RefreshSpec
	if spec == "" {
		spec = DefaultRefreshSpec
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, func() { _ = s.Refresh(ctx) }); err != nil {
		s.Close()
		return nil, fmt.Errorf("session: invalid refresh spec %q: %w", spec, err)
	}
	s.cron.Start()

	zap.S().Infow("alert session opened", "owner_id", s.ownerID)
	return s, nil
}

// OwnerID is the signed-in user.
func (s *Session) OwnerID() string {
	return s.ownerID
}

// Alerts returns the canonical list, newest first.
func (s *Session) Alerts() []models.Alert {
	return s.rec.Snapshot()
}

// Groups returns the list bucketed by day.
func (s *Session) Groups() []grouping.Group {
	return s.rec.Groups(s.projector)
}

// Changes signals after the list changed.
func (s *Session) Changes() <-chan struct{} {
	return s.rec.Changes()
}

// MarkRead marks one alert read.
func (s *Session) MarkRead(ctx context.Context, alertID string) error {
	return s.rec.MarkRead(ctx, alertID)
}

// Delete deletes one alert.
func (s *Session) Delete(ctx context.Context, alertID string) error {
	return s.rec.Delete(ctx, alertID)
}

// Refresh reloads the list from the backend.
func (s *Session) Refresh(ctx context.Context) error {
	_, err := s.rec.Load(ctx)
	return err
}

// LoadErr is the error of the newest finished load, nil when it succeeded. It tells an
// empty list apart from one that failed to load.
func (s *Session) LoadErr() error {
	return s.rec.LoadErr()
}

// Pending returns the mark-read and delete mutations of an alert still awaiting the
// backend.
func (s *Session) Pending(alertID string) []*reconciler.Mutation {
	return s.rec.Pending(alertID)
}

// LastNotification is the most recent notification delivered while the session was open.
func (s *Session) LastNotification() *push.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notification
}

// DeviceToken is the push token registered for this installation, if any.
func (s *Session) DeviceToken() *models.DeviceToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Token returns the push token string, empty before registration finished.
func (s *Session) Token() string {
	if t := s.DeviceToken(); t != nil {
		return t.Token
	}
	return ""
}

// Close releases the feed subscription and stops background work. It is safe to call
// more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		if s.removeListener != nil {
			s.removeListener()
		}
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		s.wg.Wait()
		zap.S().Infow("alert session closed", "owner_id", s.ownerID)
	})
}

func (s *Session) goRefresh(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Refresh(ctx); err != nil {
			zap.S().Warnw("resync after reconnect failed", "owner_id", s.ownerID, "error", err)
		}
	}()
}

func (s *Session) onNewAlert(a models.Alert) {
	if s.notifier == nil {
		return
	}
	s.notifier.ScheduleLocal(s.title, a.Message, map[string]interface{}{"alert_id": a.ID}, 0)
}

func (s *Session) onNotification(n push.Notification) {
	s.mu.Lock()
	s.notification = &n
	s.mu.Unlock()
	zap.S().Infow("notification received", "owner_id", s.ownerID, "notification_id", n.ID, "title", n.Title)
}

func (s *Session) onNotificationResponse(resp push.Response) {
	zap.S().Infow("notification response", "owner_id", s.ownerID, "notification_id", resp.Notification.ID, "action", resp.ActionID)
	if s.onResponse != nil {
		s.onResponse(resp)
	}
}

func (s *Session) registerPush(ctx context.Context, r Registrar, sink TokenSink) {
	token, err := r.Register(ctx, s.ownerID)
	if err != nil {
		zap.S().Warnw("push registration yielded no token", "owner_id", s.ownerID, "error", err)
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	zap.S().Infow("push token registered", "owner_id", s.ownerID, "platform", token.Platform)

	if sink == nil {
		return
	}
	if err := sink.SaveToken(ctx, *token); err != nil {
		zap.S().Errorw("failed to save push token", "owner_id", s.ownerID, "error", err)
	}
}
