package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform is the operating system a push token was issued for
type Platform string

// Supported push platforms
const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform validates a platform name, case-insensitively
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformIOS, PlatformAndroid:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// DeviceToken holds the structure for the pushtokens collection in mongo
type DeviceToken struct {
	ID        string    `json:"_id" bson:"_id,omitempty"`
	OwnerID   string    `json:"owner_id" bson:"owner_id"`
	Token     string    `json:"token" bson:"token"`       // Expo push token (e.g., "ExponentPushToken[xxx]")
	Platform  Platform  `json:"platform" bson:"platform"` // "ios" or "android"
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// RegisterPushTokenRequest is the request body for registering a push token
type RegisterPushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
