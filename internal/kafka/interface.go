package kafka

import (
	"context"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

// AsRunEvent records one on-air change for the as-run log.
type AsRunEvent struct {
	Type      string               `json:"type"` // "cut" | "clear" | "blackout"
	Session   string               `json:"session"`
	Version   uint64               `json:"version"`
	Item      *domain.ItemEnvelope `json:"item,omitempty"`
	Label     string               `json:"label,omitempty"`
	Blackout  bool                 `json:"blackout,omitempty"`
	Source    string               `json:"source,omitempty"` // "api" | "remote"
	Timestamp int64                `json:"timestamp"`        // unix millis
}

// Event types
const (
	EventCut      = "cut"
	EventClear    = "clear"
	EventBlackout = "blackout"
)

// AsRunProducer defines the interface for producing as-run events.
type AsRunProducer interface {
	ProduceAsRun(ctx context.Context, event *AsRunEvent) error
	Close() error
}
