package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/linesmerrill/planner-alerts/push"
)

// LogDisplayer writes notifications to a terminal.
type LogDisplayer struct {
	Out io.Writer
	mu  sync.Mutex
}

func (l *LogDisplayer) Display(ctx context.Context, n Notification) error {
	if !n.Presentation.ShowAlert {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.Out, "\a[%s] %s\n", n.Title, n.Body)
	return err
}

// Sender delivers Expo push messages.
type Sender interface {
	Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error)
}

// ErrNoToken is returned by ExpoDisplayer before this installation has a push token.
var ErrNoToken = errors.New("no push token registered")

// ExpoDisplayer shows notifications by pushing them to this installation's own token.
type ExpoDisplayer struct {
	Sender Sender
	Token  func() string
}

func (e ExpoDisplayer) Display(ctx context.Context, n Notification) error {
	token := ""
	if e.Token != nil {
		token = e.Token()
	}
	if token == "" {
		return ErrNoToken
	}
	msg := push.Message{To: token, Title: n.Title, Body: n.Body, Data: n.Data, ChannelID: push.DefaultChannel.ID}
	if n.Presentation.PlaySound {
		msg.Sound = "default"
	}
	tickets, err := e.Sender.Send(ctx, []push.Message{msg})
	if err != nil {
		return err
	}
	if len(tickets) == 1 && tickets[0].Status == push.TicketError {
		return fmt.Errorf("expo rejected notification: %s", tickets[0].Message)
	}
	return nil
}
