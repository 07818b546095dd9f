// Package events provides the append-only notification log that external
// indexers consume to follow registry state changes.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/feed-registry-server/internal/ownership"
)

// Type identifies the kind of state change an Event describes.
type Type string

const (
	// TypeSourceProposed is emitted when a source is proposed for a pair.
	TypeSourceProposed Type = "source_proposed"
	// TypeSourceConfirmed is emitted when a proposed source becomes a new phase.
	TypeSourceConfirmed Type = "source_confirmed"
	// TypeAccessPolicyChanged is emitted when a registry or facade swaps its access policy.
	TypeAccessPolicyChanged Type = "access_policy_changed"
	// TypeAccessAdded is emitted when a grant is added to a policy.
	TypeAccessAdded Type = "access_added"
	// TypeAccessRemoved is emitted when a grant is removed from a policy.
	TypeAccessRemoved Type = "access_removed"
	// TypeCheckAccessEnabled is emitted when a policy turns its checks on.
	TypeCheckAccessEnabled Type = "check_access_enabled"
	// TypeCheckAccessDisabled is emitted when a policy turns its checks off.
	TypeCheckAccessDisabled Type = "check_access_disabled"
	// TypeOwnershipTransferRequested is emitted when an owner proposes a successor.
	TypeOwnershipTransferRequested Type = "ownership_transfer_requested"
	// TypeOwnershipTransferred is emitted when the pending owner accepts.
	TypeOwnershipTransferred Type = "ownership_transferred"
)

// Event is a single notification. Fields not relevant to the Type are empty.
type Event struct {
	ID      uuid.UUID `json:"id"`
	Seq     uint64    `json:"seq"`
	Type    Type      `json:"type"`
	Emitter string    `json:"emitter"`
	Time    time.Time `json:"time"`

	Base           string `json:"base,omitempty"`
	Quote          string `json:"quote,omitempty"`
	Source         string `json:"source,omitempty"`
	PreviousSource string `json:"previous_source,omitempty"`
	PhaseID        uint64 `json:"phase_id,omitempty"`
	Actor          string `json:"actor,omitempty"`

	Policy string `json:"policy,omitempty"`
	Caller string `json:"caller,omitempty"`
	Data   string `json:"data,omitempty"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Publisher stamps events and forwards them to every configured sink.
// Sink failures are logged and do not fail the operation that produced the
// event; the in-memory Log is the authoritative record.
type Publisher struct {
	sinks []Sink
	now   func() time.Time
}

// NewPublisher creates a Publisher fanning out to sinks.
func NewPublisher(sinks ...Sink) *Publisher {
	return &Publisher{sinks: sinks, now: time.Now}
}

// Publish stamps e with an id and timestamp and hands it to all sinks.
// A nil Publisher discards events.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Time.IsZero() {
		e.Time = p.now().UTC()
	}
	for _, sink := range p.sinks {
		if err := sink.Emit(ctx, e); err != nil {
			slog.WarnContext(ctx, "Failed to emit event",
				"type", e.Type,
				"emitter", e.Emitter,
				"error", err,
			)
		}
	}
}

// OwnershipNotifier adapts a Publisher to ownership notifications for the
// named emitter.
func OwnershipNotifier(p *Publisher, emitter string) ownership.Notifier {
	return &ownershipNotifier{publisher: p, emitter: emitter}
}

type ownershipNotifier struct {
	publisher *Publisher
	emitter   string
}

func (n *ownershipNotifier) TransferRequested(from, to string) {
	n.publisher.Publish(context.Background(), Event{
		Type:    TypeOwnershipTransferRequested,
		Emitter: n.emitter,
		From:    from,
		To:      to,
	})
}

func (n *ownershipNotifier) Transferred(from, to string) {
	n.publisher.Publish(context.Background(), Event{
		Type:    TypeOwnershipTransferred,
		Emitter: n.emitter,
		From:    from,
		To:      to,
	})
}
