package domain

import "time"

// RegisterDeviceRequest binds a push token to the calling recipient.
type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"omitempty,oneof=ios android web"`
}

// Device is a push endpoint owned by a recipient. The push channel fans a
// notification out to every enabled device of its recipient.
type Device struct {
	DeviceID    string    `json:"id" dynamodbav:"device_id"`
	RecipientID string    `json:"recipient_id" dynamodbav:"recipient_id"`
	Category    Category  `json:"category" dynamodbav:"category"`
	Token       string    `json:"token" dynamodbav:"token"`
	Platform    string    `json:"platform,omitempty" dynamodbav:"platform,omitempty"`
	Enable      bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}
