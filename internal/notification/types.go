// Package notification sends wake-word notifications through shoutrrr
// services and plain HTTP webhooks.
package notification

import (
	"context"
	"time"
)

// Type categorizes notifications so providers can opt in to a subset.
type Type string

const (
	TypeDetection Type = "detection"
	TypeSystem    Type = "system"
	TypeError     Type = "error"
)

// Notification is a single message handed to providers.
type Notification struct {
	ID        string
	Type      Type
	Title     string
	Message   string
	Component string
	Timestamp time.Time
	Metadata  map[string]any
}

// Provider defines a push delivery backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	GetName() string
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
	SupportsType(notifType Type) bool
	IsEnabled() bool
}

func typeSet(supported []string) map[string]bool {
	types := make(map[string]bool)
	if len(supported) == 0 {
		for _, t := range []Type{TypeDetection, TypeSystem, TypeError} {
			types[string(t)] = true
		}
		return types
	}
	for _, t := range supported {
		types[t] = true
	}
	return types
}
