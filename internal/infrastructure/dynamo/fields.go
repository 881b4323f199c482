package dynamo

// DynamoDB attribute names used in expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldNotificationID = "notification_id"
	fieldEventID        = "event_id"
	fieldRecipientID    = "recipient_id"
	fieldCreatedAt      = "created_at"
	fieldDeliveryStatus = "delivery_status"
	fieldDeliveredAt    = "delivered_at"
	fieldRetryCount     = "retry_count"
	fieldReadStatus     = "read_status"
	fieldReadAt         = "read_at"
	fieldReadByUserID   = "read_by_user_id"
	fieldSharedRead     = "shared_read"
	fieldGroupID        = "group_id"
	fieldHubID          = "hub_id"
	fieldPendingKey     = "pending_key"
	fieldPendingSort    = "pending_sort"

	fieldDeviceID  = "device_id"
	fieldToken     = "token"
	fieldEnable    = "enable"
	fieldUpdatedAt = "updated_at"
)

// Index names.
const (
	indexPending   = "pending_key-pending_sort-index"
	indexRecipient = "recipient_id-created_at-index"
	indexGroup     = "group_id-event_id-index"
	indexHub       = "hub_id-event_id-index"

	indexDeviceRecipient = "recipient_id-index"
	indexDeviceToken     = "token-index"
)
