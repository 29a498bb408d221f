package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/linesmerrill/planner-alerts/models"
)

// WebSocketSource reads the API server's alert feed. The server scopes the feed to the
// owner of Token, so ownerID only serves the listener's filter.
type WebSocketSource struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
}

// Open dials the feed endpoint.
func (w WebSocketSource) Open(ctx context.Context, ownerID string) (Stream, error) {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if w.Token != "" {
		header.Set("Authorization", "Bearer "+w.Token)
	}
	conn, resp, err := dialer.DialContext(ctx, w.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", w.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", w.URL, err)
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
	once sync.Once
}

func (s *wsStream) Next(ctx context.Context) (models.Alert, error) {
	for {
		var env Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return models.Alert{}, err
		}
		if env.Event == EventAlertCreated {
			return env.Data, nil
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}
