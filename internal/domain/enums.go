// Package domain defines the core domain models for chatrelay.
package domain

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DeliveryStatus represents the delivery state of a message.
type DeliveryStatus string

const (
	DeliverySending DeliveryStatus = "sending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryError   DeliveryStatus = "error"
)

// ConnectionStatus represents connectivity to the remote platform.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionOnline       ConnectionStatus = "online"
)

// PendingKind represents the kind of a queued offline operation.
type PendingKind string

const (
	PendingConversation PendingKind = "conversation"
	PendingMessage      PendingKind = "message"
)
