// Package notify shows local notifications, immediately or after a delay.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Presentation controls how a notification is shown while the app is in the foreground.
type Presentation struct {
	ShowAlert bool
	PlaySound bool
	SetBadge  bool
}

// DefaultPresentation shows the alert silently without touching the badge.
var DefaultPresentation = Presentation{ShowAlert: true}

// Notification is one local notification.
type Notification struct {
	ID           string
	Title        string
	Body         string
	Data         map[string]interface{}
	Presentation Presentation
}

// Displayer puts a notification in front of the user.
type Displayer interface {
	Display(ctx context.Context, n Notification) error
}

const displayTimeout = 10 * time.Second

// Scheduler fires notifications through a Displayer. Failures are logged and never
// returned to the caller.
type Scheduler struct {
	displayer    Displayer
	limiter      *rate.Limiter
	presentation Presentation

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler returns a scheduler that displays at most burst notifications at once and
// refills at limit per second. Notifications over the limit are dropped.
func NewScheduler(d Displayer, limit rate.Limit, burst int) *Scheduler {
	return &Scheduler{
		displayer:    d,
		limiter:      rate.NewLimiter(limit, burst),
		presentation: DefaultPresentation,
		timers:       map[string]*time.Timer{},
	}
}

// ScheduleLocal shows the notification after delay and returns its schedule id. A zero
// delay fires right away without blocking the caller. After Close it returns "".
func (s *Scheduler) ScheduleLocal(title, body string, data map[string]interface{}, delay time.Duration) string {
	n := Notification{
		ID:           uuid.NewString(),
		Title:        title,
		Body:         body,
		Data:         data,
		Presentation: s.presentation,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		zap.S().Warnw("scheduler closed, dropping notification", "title", title)
		return ""
	}

	s.wg.Add(1)
	if delay <= 0 {
		go s.fire(n)
		return n.ID
	}
	s.timers[n.ID] = time.AfterFunc(delay, func() { s.fire(n) })
	return n.ID
}

// Cancel stops a pending notification. It reports whether one was stopped.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	delete(s.timers, id)
	if t.Stop() {
		s.wg.Done()
		return true
	}
	return false
}

// Pending is the number of delayed notifications not yet fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close drops pending notifications and waits for in-flight displays.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) fire(n Notification) {
	defer s.wg.Done()

	s.mu.Lock()
	delete(s.timers, n.ID)
	s.mu.Unlock()

	if !s.limiter.Allow() {
		zap.S().Warnw("notification rate limit reached, dropping", "notification_id", n.ID, "title", n.Title)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), displayTimeout)
	defer cancel()
	if err := s.displayer.Display(ctx, n); err != nil {
		zap.S().Errorw("failed to display notification", "notification_id", n.ID, "error", err)
	}
}
