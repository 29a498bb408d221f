package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticHost_NotificationListeners(t *testing.T) {
	host := &StaticHost{}
	var received []Notification
	var responses []Response

	remove := host.AddNotificationListener(NotificationListener{
		Received: func(n Notification) { received = append(received, n) },
		Response: func(r Response) { responses = append(responses, r) },
	})
	// a listener may leave either callback unset
	removeOther := host.AddNotificationListener(NotificationListener{})
	assert.Equal(t, 2, host.Listeners())

	host.Receive(Notification{ID: "n1", Title: "New alert", Body: "risk"})
	host.Respond(Response{Notification: Notification{ID: "n1"}})

	if assert.Len(t, received, 1) {
		assert.Equal(t, "n1", received[0].ID)
		assert.False(t, received[0].ReceivedAt.IsZero())
	}
	if assert.Len(t, responses, 1) {
		assert.Equal(t, DefaultActionID, responses[0].ActionID)
	}

	remove()
	remove()
	removeOther()
	assert.Equal(t, 0, host.Listeners())

	host.Receive(Notification{ID: "n2"})
	assert.Len(t, received, 1)
}
