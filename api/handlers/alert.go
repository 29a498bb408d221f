package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/planner-alerts/api"
	"github.com/linesmerrill/planner-alerts/config"
	"github.com/linesmerrill/planner-alerts/databases"
	"github.com/linesmerrill/planner-alerts/models"
	"github.com/linesmerrill/planner-alerts/push"
)

// Publisher fans a freshly inserted alert out to other API instances.
type Publisher interface {
	Publish(ctx context.Context, alert models.Alert) error
}

// Pusher delivers push notifications to devices.
type Pusher interface {
	Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error)
}

// Alert exposes the alert routes
type Alert struct {
	DB        databases.AlertDatabase
	Tokens    databases.PushTokenDatabase
	Publisher Publisher
	Pusher    Pusher
}

// AlertsHandler returns the alerts of the authenticated user, newest first
func (a Alert) AlertsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(r.Context())
	if !ok {
		config.ErrorStatus("user is required", http.StatusUnauthorized, w, errors.New("no user in request"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	alerts, err := a.DB.FindByOwner(ctx, userID)
	if err != nil {
		config.ErrorStatus("failed to get alerts", http.StatusInternalServerError, w, err)
		return
	}

	writeJSON(w, http.StatusOK, alerts)
}

// MarkAlertReadHandler flags one alert of the authenticated user as read
func (a Alert) MarkAlertReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(r.Context())
	if !ok {
		config.ErrorStatus("user is required", http.StatusUnauthorized, w, errors.New("no user in request"))
		return
	}
	alertID := mux.Vars(r)["alert_id"]
	if alertID == "" {
		config.ErrorStatus("alert_id is required", http.StatusBadRequest, w, fmt.Errorf("alert_id is required"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	alert, err := a.DB.FindByID(ctx, userID, alertID)
	if errors.Is(err, databases.ErrAlertNotFound) {
		config.ErrorStatus("alert not found", http.StatusNotFound, w, err)
		return
	}
	if err != nil {
		config.ErrorStatus("failed to get alert", http.StatusInternalServerError, w, err)
		return
	}
	if alert.IsRead {
		writeJSON(w, http.StatusOK, models.MarkAsReadResponse{Success: true, WasAlreadyRead: true})
		return
	}

	// the alert can still be read or deleted between the lookup and the update
	alreadyRead, err := a.DB.MarkRead(ctx, userID, alertID)
	if errors.Is(err, databases.ErrAlertNotFound) {
		config.ErrorStatus("alert not found", http.StatusNotFound, w, err)
		return
	}
	if err != nil {
		config.ErrorStatus("failed to mark alert as read", http.StatusInternalServerError, w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.MarkAsReadResponse{Success: true, WasAlreadyRead: alreadyRead})
}

// DeleteAlertHandler hard deletes one alert of the authenticated user
func (a Alert) DeleteAlertHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(r.Context())
	if !ok {
		config.ErrorStatus("user is required", http.StatusUnauthorized, w, errors.New("no user in request"))
		return
	}
	alertID := mux.Vars(r)["alert_id"]
	if alertID == "" {
		config.ErrorStatus("alert_id is required", http.StatusBadRequest, w, fmt.Errorf("alert_id is required"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	err := a.DB.Delete(ctx, userID, alertID)
	if errors.Is(err, databases.ErrAlertNotFound) {
		config.ErrorStatus("alert not found", http.StatusNotFound, w, err)
		return
	}
	if err != nil {
		config.ErrorStatus("failed to delete alert", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateAlertHandler is used by the services that author alerts. It stores the alert,
// fans it out and pushes it to the owner's devices.
func (a Alert) CreateAlertHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.Message = strings.TrimSpace(req.Message)
	if req.OwnerID == "" || req.Message == "" {
		config.ErrorStatus("owner_id and message are required", http.StatusBadRequest, w, fmt.Errorf("owner_id and message are required"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	alert, err := a.DB.InsertOne(ctx, models.Alert{OwnerID: req.OwnerID, Message: req.Message})
	if err != nil {
		config.ErrorStatus("failed to create alert", http.StatusInternalServerError, w, err)
		return
	}

	if a.Publisher != nil {
		if err := a.Publisher.Publish(ctx, *alert); err != nil {
			zap.S().Errorw("failed to publish alert", "alert_id", alert.ID, "error", err)
		}
	}
	a.pushToDevices(ctx, *alert)

	writeJSON(w, http.StatusCreated, alert)
}

func (a Alert) pushToDevices(ctx context.Context, alert models.Alert) {
	if a.Pusher == nil || a.Tokens == nil {
		return
	}
	tokens, err := a.Tokens.FindByOwner(ctx, alert.OwnerID)
	if err != nil {
		zap.S().Errorw("failed to get push tokens", "owner_id", alert.OwnerID, "error", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	to := make([]string, 0, len(tokens))
	for _, t := range tokens {
		to = append(to, t.Token)
	}
	messages := push.NewMessages(to, "New alert", alert.Message, map[string]interface{}{"alert_id": alert.ID})
	tickets, err := a.Pusher.Send(ctx, messages)
	if err != nil {
		zap.S().Errorw("failed to push alert", "alert_id", alert.ID, "error", err)
	}
	for i, ticket := range tickets {
		if i >= len(to) || !ticket.DeviceNotRegistered() {
			continue
		}
		if err := a.Tokens.DeleteByToken(ctx, to[i]); err != nil {
			zap.S().Errorw("failed to drop unregistered push token", "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
