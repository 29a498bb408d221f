package push

import (
	"context"
	"sync"
	"time"

	"github.com/linesmerrill/planner-alerts/models"
)

// PermissionStatus is the host's answer to a notification permission query.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Importance of an Android notification channel.
type Importance int

const (
	ImportanceDefault Importance = 3
	ImportanceHigh    Importance = 4
	ImportanceMax     Importance = 5
)

// AndroidChannel describes a notification channel on Android hosts.
type AndroidChannel struct {
	ID               string
	Name             string
	Importance       Importance
	VibrationPattern []int
	LightColor       string
}

// DefaultChannel is set up on Android before any token is requested.
var DefaultChannel = AndroidChannel{
	ID:               "default",
	Name:             "default",
	Importance:       ImportanceMax,
	VibrationPattern: []int{0, 250, 250, 250},
	LightColor:       "#FF231F7C",
}

// DefaultActionID is the action of a plain tap on a notification.
const DefaultActionID = "default"

// Notification is a notification the host delivered while the app was running.
type Notification struct {
	ID         string
	Title      string
	Body       string
	Data       map[string]interface{}
	ReceivedAt time.Time
}

// Response is the user interacting with a delivered notification.
type Response struct {
	Notification Notification
	ActionID     string
}

// NotificationListener receives foreground notifications and user responses. Either
// callback may be nil.
type NotificationListener struct {
	Received func(Notification)
	Response func(Response)
}

// Host is the platform capability the registrar runs against.
type Host interface {
	IsDevice() bool
	Platform() models.Platform
	PermissionStatus(ctx context.Context) (PermissionStatus, error)
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	// DeviceToken is the native APNs/FCM token of this installation.
	DeviceToken(ctx context.Context) (string, error)
	SetNotificationChannel(ctx context.Context, channel AndroidChannel) error
	// Alert shows a one time message to the user.
	Alert(message string)
	// AddNotificationListener registers l and returns the function that removes it.
	AddNotificationListener(l NotificationListener) (remove func())
}

// StaticHost is a Host whose answers are fixed up front. The terminal client uses it to
// stand in for a device.
type StaticHost struct {
	Device      bool
	OS          models.Platform
	Status      PermissionStatus
	OnRequest   PermissionStatus
	NativeToken string
	Alerts      []string
	Channels    []AndroidChannel

	mu        sync.Mutex
	nextID    int
	listeners map[int]NotificationListener
}

func (h *StaticHost) IsDevice() bool { return h.Device }
func (h *StaticHost) Platform() models.Platform { return h.OS }

func (h *StaticHost) PermissionStatus(ctx context.Context) (PermissionStatus, error) {
	if h.Status == "" {
		return PermissionUndetermined, nil
	}
	return h.Status, nil
}

func (h *StaticHost) RequestPermission(ctx context.Context) (PermissionStatus, error) {
	if h.OnRequest == "" {
		return PermissionDenied, nil
	}
	h.Status = h.OnRequest
	return h.OnRequest, nil
}

func (h *StaticHost) DeviceToken(ctx context.Context) (string, error) {
	return h.NativeToken, nil
}

func (h *StaticHost) SetNotificationChannel(ctx context.Context, channel AndroidChannel) error {
	h.Channels = append(h.Channels, channel)
	return nil
}

func (h *StaticHost) Alert(message string) {
	h.Alerts = append(h.Alerts, message)
}

func (h *StaticHost) AddNotificationListener(l NotificationListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners == nil {
		h.listeners = map[int]NotificationListener{}
	}
	id := h.nextID
	h.nextID++
	h.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Receive delivers n to every listener as a foreground notification.
func (h *StaticHost) Receive(n Notification) {
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = time.Now()
	}
	for _, l := range h.snapshotListeners() {
		if l.Received != nil {
			l.Received(n)
		}
	}
}

// Respond delivers a user response to every listener.
func (h *StaticHost) Respond(resp Response) {
	if resp.ActionID == "" {
		resp.ActionID = DefaultActionID
	}
	for _, l := range h.snapshotListeners() {
		if l.Response != nil {
			l.Response(resp)
		}
	}
}

// Listeners reports how many listeners are registered.
func (h *StaticHost) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *StaticHost) snapshotListeners() []NotificationListener {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]NotificationListener, 0, len(h.listeners))
	for _, l := range h.listeners {
		out = append(out, l)
	}
	return out
}
