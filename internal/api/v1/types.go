package v1

import (
	"math/big"

	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/source"
)

// Round ids and answers are decimal strings; they routinely exceed 2^53.

// TypeAndVersionResponse is the implementation identifier.
type TypeAndVersionResponse struct {
	TypeAndVersion string `json:"type_and_version"`
}

// FeedResponse describes the current source of a pair.
type FeedResponse struct {
	Base    string `json:"base"`
	Quote   string `json:"quote"`
	Source  string `json:"source"`
	PhaseID uint64 `json:"phase_id"`
}

// FeedListResponse lists feeds with their current source.
type FeedListResponse struct {
	Feeds []FeedResponse `json:"feeds"`
	Total int            `json:"total"`
}

// FacadeResponse describes a named single-pair facade.
type FacadeResponse struct {
	Name          string `json:"name"`
	Base          string `json:"base"`
	Quote         string `json:"quote"`
	Identity      string `json:"identity"`
	AllowedReader string `json:"allowed_reader,omitempty"`
	Policy        string `json:"policy,omitempty"`
}

// FacadeListResponse lists the configured facades by name.
type FacadeListResponse struct {
	Facades []FacadeResponse `json:"facades"`
	Total   int              `json:"total"`
}

// DecimalsResponse carries a source's decimals.
type DecimalsResponse struct {
	Decimals uint8 `json:"decimals"`
}

// DescriptionResponse carries a source's description.
type DescriptionResponse struct {
	Description string `json:"description"`
}

// SourceVersionResponse carries a source's version.
type SourceVersionResponse struct {
	Version uint64 `json:"version"`
}

// AnswerResponse carries an answer.
type AnswerResponse struct {
	Answer string `json:"answer"`
}

// TimestampResponse carries an update timestamp.
type TimestampResponse struct {
	Timestamp uint64 `json:"timestamp"`
}

// RoundResponse carries a round id. Zero means no such round.
type RoundResponse struct {
	RoundID string `json:"round_id"`
}

// RoundDataResponse is a full round record.
type RoundDataResponse struct {
	RoundID         string `json:"round_id"`
	Answer          string `json:"answer"`
	StartedAt       uint64 `json:"started_at"`
	UpdatedAt       uint64 `json:"updated_at"`
	AnsweredInRound string `json:"answered_in_round"`
}

// SourceResponse names a source.
type SourceResponse struct {
	Source string `json:"source"`
}

// ProposedResponse describes the pending proposal.
type ProposedResponse struct {
	Source   string `json:"source"`
	Proposed bool   `json:"proposed"`
}

// PhaseResponse is a phase record.
type PhaseResponse struct {
	ID            uint64 `json:"id"`
	Source        string `json:"source"`
	StartingRound uint64 `json:"starting_round,string"`
	EndingRound   uint64 `json:"ending_round,string"`
}

// PhaseRangeResponse is the global round range of a phase.
type PhaseRangeResponse struct {
	StartingRoundID string `json:"starting_round_id"`
	EndingRoundID   string `json:"ending_round_id"`
}

// ConfirmResponse is returned by a confirmed transition.
type ConfirmResponse struct {
	PhaseID uint64 `json:"phase_id"`
}

// EnabledResponse reports a flag.
type EnabledResponse struct {
	Enabled bool `json:"enabled"`
}

// EventsResponse is a page of the notification log.
type EventsResponse struct {
	Events []events.Event `json:"events"`
	Next   uint64         `json:"next"`
}

// OwnerResponse describes the registry's ownership.
type OwnerResponse struct {
	Owner        string `json:"owner"`
	PendingOwner string `json:"pending_owner,omitempty"`
}

// PolicyResponse names the active access policy.
type PolicyResponse struct {
	Policy string `json:"policy"`
}

// HasAccessResponse is the outcome of an access check.
type HasAccessResponse struct {
	HasAccess bool `json:"has_access"`
}

// SourceRequest is the body of propose and confirm.
type SourceRequest struct {
	Source string `json:"source"`
}

// TransferRequest is the body of an ownership transfer.
type TransferRequest struct {
	To string `json:"to"`
}

// PolicyRequest selects a configured access policy by name. An empty name
// removes the policy.
type PolicyRequest struct {
	Policy string `json:"policy"`
}

// GrantRequest grants or revokes access. Base and quote are only used by
// local grants.
type GrantRequest struct {
	Caller string `json:"caller"`
	Base   string `json:"base,omitempty"`
	Quote  string `json:"quote,omitempty"`
}

// CheckRequest switches access checks on or off.
type CheckRequest struct {
	Enabled bool `json:"enabled"`
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newRoundData(rd source.RoundData) RoundDataResponse {
	return RoundDataResponse{
		RoundID:         decimal(rd.RoundID),
		Answer:          decimal(rd.Answer),
		StartedAt:       rd.StartedAt,
		UpdatedAt:       rd.UpdatedAt,
		AnsweredInRound: decimal(rd.AnsweredInRound),
	}
}

func newPhase(p registry.Phase) PhaseResponse {
	return PhaseResponse{
		ID:            p.ID,
		Source:        p.Source,
		StartingRound: p.StartingRound,
		EndingRound:   p.EndingRound,
	}
}
