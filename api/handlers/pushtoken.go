package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/linesmerrill/planner-alerts/api"
	"github.com/linesmerrill/planner-alerts/config"
	"github.com/linesmerrill/planner-alerts/databases"
	"github.com/linesmerrill/planner-alerts/models"
)

// PushToken exposes the device token routes
type PushToken struct {
	DB databases.PushTokenDatabase
}

// RegisterPushTokenHandler stores the device token of the authenticated user
func (p PushToken) RegisterPushTokenHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.UserID(r.Context())
	if !ok {
		config.ErrorStatus("user is required", http.StatusUnauthorized, w, errors.New("no user in request"))
		return
	}

	var req models.RegisterPushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		config.ErrorStatus("token is required", http.StatusBadRequest, w, fmt.Errorf("token is required"))
		return
	}
	platform, err := models.ParsePlatform(req.Platform)
	if err != nil {
		config.ErrorStatus("invalid platform", http.StatusBadRequest, w, err)
		return
	}

	dt := models.DeviceToken{
		OwnerID:   userID,
		Token:     token,
		Platform:  platform,
		UpdatedAt: time.Now().UTC(),
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	if err := p.DB.Upsert(ctx, dt); err != nil {
		config.ErrorStatus("failed to save push token", http.StatusInternalServerError, w, err)
		return
	}

	writeJSON(w, http.StatusOK, dt)
}
