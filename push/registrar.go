// Package push registers this installation for remote notifications and talks to the
// Expo push service.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/planner-alerts/models"
)

var (
	// ErrUnsupported is returned when the host is not a physical device.
	ErrUnsupported = errors.New("push notifications require a physical device")
	// ErrPermissionDenied is returned when the user refused notifications.
	ErrPermissionDenied = errors.New("notification permission not granted")
	// ErrMissingProjectID is a setup error: no push project id is configured.
	ErrMissingProjectID = errors.New("push project id not configured")
)

// User facing messages shown through Host.Alert.
const (
	msgUnsupported = "Must use physical device for Push Notifications"
	msgDenied      = "Failed to get push token for push notification!"
)

// TokenIssuer exchanges a native device token for a push service token.
type TokenIssuer interface {
	IssueToken(ctx context.Context, req TokenRequest) (string, error)
}

// TokenRequest identifies the installation a push token is issued for.
type TokenRequest struct {
	ProjectID   string
	DeviceToken string
	Platform    models.Platform
}

// Registrar obtains a push token for the current installation.
type Registrar struct {
	Host      Host
	Issuer    TokenIssuer
	ProjectID string
	Now       func() time.Time
}

// Register walks the permission flow and returns the issued token. Every early return
// carries a sentinel error and no token; none of them are fatal to the caller.
func (r *Registrar) Register(ctx context.Context, ownerID string) (*models.DeviceToken, error) {
	platform := r.Host.Platform()
	if platform == models.PlatformAndroid {
		if err := r.Host.SetNotificationChannel(ctx, DefaultChannel); err != nil {
			zap.S().Warnw("failed to set notification channel", "channel", DefaultChannel.ID, "error", err)
		}
	}

	if !r.Host.IsDevice() {
		r.Host.Alert(msgUnsupported)
		return nil, ErrUnsupported
	}

	status, err := r.Host.PermissionStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("query notification permission: %w", err)
	}
	if status != PermissionGranted {
		status, err = r.Host.RequestPermission(ctx)
		if err != nil {
			return nil, fmt.Errorf("request notification permission: %w", err)
		}
	}
	if status != PermissionGranted {
		r.Host.Alert(msgDenied)
		return nil, ErrPermissionDenied
	}

	if r.ProjectID == "" {
		zap.S().Errorw("push registration misconfigured", "error", ErrMissingProjectID)
		return nil, ErrMissingProjectID
	}

	native, err := r.Host.DeviceToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("read device token: %w", err)
	}
	token, err := r.Issuer.IssueToken(ctx, TokenRequest{ProjectID: r.ProjectID, DeviceToken: native, Platform: platform})
	if err != nil {
		return nil, fmt.Errorf("issue push token: %w", err)
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	ts := now().UTC()
	return &models.DeviceToken{
		OwnerID:   ownerID,
		Token:     token,
		Platform:  platform,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}
