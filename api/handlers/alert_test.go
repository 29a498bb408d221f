package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/planner-alerts/api"
	"github.com/linesmerrill/planner-alerts/api/handlers"
	"github.com/linesmerrill/planner-alerts/databases"
	mocksdb "github.com/linesmerrill/planner-alerts/databases/mocks"
	"github.com/linesmerrill/planner-alerts/models"
	"github.com/linesmerrill/planner-alerts/push"
)

const (
	testSecret       = "test-secret"
	testServiceToken = "service-token"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, alert models.Alert) error {
	return m.Called(ctx, alert).Error(0)
}

type mockPusher struct {
	mock.Mock
}

func (m *mockPusher) Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error) {
	args := m.Called(ctx, messages)
	tickets, _ := args.Get(0).([]push.Ticket)
	return tickets, args.Error(1)
}

func newTestApp(alerts databases.AlertDatabase, tokens databases.PushTokenDatabase) *handlers.App {
	a := &handlers.App{
		Auth:   api.NewAuth(testSecret, testServiceToken),
		Alerts: alerts,
		Tokens: tokens,
		Source: newPipeSource(),
	}
	a.Router = a.New()
	return a
}

func userToken(t *testing.T, a *handlers.App, userID string) string {
	t.Helper()
	token, err := a.Auth.IssueToken(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func serve(a *handlers.App, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.Router.ServeHTTP(rr, req)
	return rr
}

func errorBody(message string, err error) string {
	b, _ := json.Marshal(models.ErrorMessageResponse{Response: models.MessageError{Message: message, Error: err.Error()}})
	return string(b)
}

func TestAlert_AlertsHandler(t *testing.T) {
	db := &mocksdb.AlertDatabase{}
	created := time.Date(2024, 10, 20, 10, 0, 0, 0, time.UTC)
	db.On("FindByOwner", mock.Anything, "u1").Return([]models.Alert{{ID: "a1", OwnerID: "u1", Message: "risk", CreatedAt: created}}, nil)
	a := newTestApp(db, &mocksdb.PushTokenDatabase{})

	rr := serve(a, "GET", "/api/v1/alerts", userToken(t, a, "u1"), nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var got []models.Alert
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.True(t, created.Equal(got[0].CreatedAt))
}

func TestAlert_AlertsHandlerUnauthorized(t *testing.T) {
	db := &mocksdb.AlertDatabase{}
	a := newTestApp(db, &mocksdb.PushTokenDatabase{})

	rr := serve(a, "GET", "/api/v1/alerts", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	db.AssertNotCalled(t, "FindByOwner", mock.Anything, mock.Anything)
}

func TestAlert_AlertsHandlerDBError(t *testing.T) {
	db := &mocksdb.AlertDatabase{}
	db.On("FindByOwner", mock.Anything, "u1").Return(nil, errors.New("mocked-error"))
	a := newTestApp(db, &mocksdb.PushTokenDatabase{})

	rr := serve(a, "GET", "/api/v1/alerts", userToken(t, a, "u1"), nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, errorBody("failed to get alerts", errors.New("mocked-error")), rr.Body.String())
}

func TestAlert_MarkAlertReadHandler(t *testing.T) {
	db := &mocksdb.AlertDatabase{}
	db.On("FindByID", mock.Anything, "u1", "a1").Return(&models.Alert{ID: "a1", OwnerID: "u1"}, nil)
	db.On("FindByID", mock.Anything, "u1", "a2").Return(&models.Alert{ID: "a2", OwnerID: "u1", IsRead: true}, nil)
	db.On("FindByID", mock.Anything, "u1", "raced").Return(&models.Alert{ID: "raced", OwnerID: "u1"}, nil)
	db.On("FindByID", mock.Anything, "u1", "gone").Return(&models.Alert{ID: "gone", OwnerID: "u1"}, nil)
	db.On("FindByID", mock.Anything, "u1", "missing").Return(nil, databases.ErrAlertNotFound)
	db.On("FindByID", mock.Anything, "u1", "lookup").Return(nil, errors.New("mocked-error"))
	db.On("FindByID", mock.Anything, "u1", "broken").Return(&models.Alert{ID: "broken", OwnerID: "u1"}, nil)
	db.On("MarkRead", mock.Anything, "u1", "a1").Return(false, nil)
	db.On("MarkRead", mock.Anything, "u1", "raced").Return(true, nil)
	db.On("MarkRead", mock.Anything, "u1", "gone").Return(false, databases.ErrAlertNotFound)
	db.On("MarkRead", mock.Anything, "u1", "broken").Return(false, errors.New("mocked-error"))
	a := newTestApp(db, &mocksdb.PushTokenDatabase{})
	token := userToken(t, a, "u1")

	tests := []struct {
		id     string
		status int
		body   string
	}{
		{"a1", http.StatusOK, `{"success":true,"wasAlreadyRead":false}`},
		{"a2", http.StatusOK, `{"success":true,"wasAlreadyRead":true}`},
		{"raced", http.StatusOK, `{"success":true,"wasAlreadyRead":true}`},
		{"gone", http.StatusNotFound, errorBody("alert not found", databases.ErrAlertNotFound)},
		{"missing", http.StatusNotFound, errorBody("alert not found", databases.ErrAlertNotFound)},
		{"lookup", http.StatusInternalServerError, errorBody("failed to get alert", errors.New("mocked-error"))},
		{"broken", http.StatusInternalServerError, errorBody("failed to mark alert as read", errors.New("mocked-error"))},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			rr := serve(a, "PUT", "/api/v1/alerts/"+tt.id+"/read", token, nil)
			assert.Equal(t, tt.status, rr.Code)
			assert.JSONEq(t, tt.body, rr.Body.String())
		})
	}
	db.AssertNotCalled(t, "MarkRead", mock.Anything, "u1", "a2")
	db.AssertNotCalled(t, "MarkRead", mock.Anything, "u1", "missing")
}

func TestAlert_DeleteAlertHandler(t *testing.T) {
	db := &mocksdb.AlertDatabase{}
	db.On("Delete", mock.Anything, "u1", "a1").Return(nil)
	db.On("Delete", mock.Anything, "u1", "missing").Return(databases.ErrAlertNotFound)
	a := newTestApp(db, &mocksdb.PushTokenDatabase{})
	token := userToken(t, a, "u1")

	rr := serve(a, "DELETE", "/api/v1/alerts/a1", token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(a, "DELETE", "/api/v1/alerts/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// another user's token cannot reach u1's alert
	db.On("Delete", mock.Anything, "u2", "a1").Return(databases.ErrAlertNotFound)
	rr = serve(a, "DELETE", "/api/v1/alerts/a1", userToken(t, a, "u2"), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAlert_CreateAlertHandler(t *testing.T) {
	db := &mocksdb.AlertDatabase{}
	tokens := &mocksdb.PushTokenDatabase{}
	publisher := &mockPublisher{}
	pusher := &mockPusher{}

	stored := models.Alert{ID: "a1", OwnerID: "u1", Message: "risk level high", CreatedAt: time.Date(2024, 10, 20, 10, 0, 0, 0, time.UTC)}
	db.On("InsertOne", mock.Anything, models.Alert{OwnerID: "u1", Message: "risk level high"}).Return(&stored, nil)
	publisher.On("Publish", mock.Anything, stored).Return(nil)
	tokens.On("FindByOwner", mock.Anything, "u1").Return([]models.DeviceToken{{Token: "live"}, {Token: "dead"}}, nil)
	pusher.On("Send", mock.Anything, mock.MatchedBy(func(msgs []push.Message) bool {
		return len(msgs) == 2 && msgs[0].To == "live" && msgs[1].To == "dead" && msgs[0].Data["alert_id"] == "a1"
	})).Return([]push.Ticket{{Status: push.TicketOK}, deadTicket()}, nil)
	tokens.On("DeleteByToken", mock.Anything, "dead").Return(nil).Once()

	a := newTestApp(db, tokens)
	a.Publisher = publisher
	a.Pusher = pusher
	a.Router = a.New()

	rr := serve(a, "POST", "/api/v1/alerts", testServiceToken, []byte(`{"owner_id":"u1","message":" risk level high "}`))

	require.Equal(t, http.StatusCreated, rr.Code)
	var got models.Alert
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "a1", got.ID)
	publisher.AssertExpectations(t)
	pusher.AssertExpectations(t)
	tokens.AssertExpectations(t)
}

func deadTicket() push.Ticket {
	t := push.Ticket{Status: push.TicketError}
	t.Details.Error = push.ErrorDeviceNotRegistered
	return t
}

func TestAlert_CreateAlertHandlerValidation(t *testing.T) {
	db := &mocksdb.AlertDatabase{}
	a := newTestApp(db, &mocksdb.PushTokenDatabase{})

	rr := serve(a, "POST", "/api/v1/alerts", testServiceToken, []byte(`{"owner_id":"u1"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(a, "POST", "/api/v1/alerts", testServiceToken, []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// user tokens cannot author alerts
	rr = serve(a, "POST", "/api/v1/alerts", userToken(t, a, "u1"), []byte(`{"owner_id":"u1","message":"x"}`))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	db.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestAlert_CreateAlertHandlerPushFailureStillCreates(t *testing.T) {
	db := &mocksdb.AlertDatabase{}
	tokens := &mocksdb.PushTokenDatabase{}
	stored := models.Alert{ID: "a1", OwnerID: "u1", Message: "m"}
	db.On("InsertOne", mock.Anything, mock.Anything).Return(&stored, nil)
	tokens.On("FindByOwner", mock.Anything, "u1").Return(nil, errors.New("mocked-error"))

	a := newTestApp(db, tokens)
	a.Pusher = &mockPusher{}
	a.Router = a.New()

	rr := serve(a, "POST", "/api/v1/alerts", testServiceToken, []byte(`{"owner_id":"u1","message":"m"}`))
	assert.Equal(t, http.StatusCreated, rr.Code)
}
