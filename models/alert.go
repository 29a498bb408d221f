package models

import "time"

// Alert holds the structure for the alerts collection in mongo. Alerts are authored by
// backend components reacting to domain events (e.g. a risk level crossing its threshold)
// and are only read, marked read or deleted by the owning user.
type Alert struct {
	ID        string    `json:"id" bson:"_id"`
	OwnerID   string    `json:"owner_id" bson:"owner_id"`
	Message   string    `json:"message" bson:"message"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	IsRead    bool      `json:"is_read" bson:"is_read"`
}

// CreateAlertRequest holds the structure for authoring a new alert
type CreateAlertRequest struct {
	OwnerID string `json:"owner_id"`
	Message string `json:"message"`
}

// MarkAsReadResponse holds the structure for the mark as read response
type MarkAsReadResponse struct {
	Success        bool `json:"success"`
	WasAlreadyRead bool `json:"wasAlreadyRead"`
}
