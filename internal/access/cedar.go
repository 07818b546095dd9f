package access

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	cedar "github.com/cedar-policy/cedar-go"
)

const cedarNamespace = "FeedRegistry"

// CedarPolicy decodes each request as a pair and evaluates a Cedar policy set
// with principal FeedRegistry::Caller, action FeedRegistry::Action::"read" and
// resource FeedRegistry::Pair carrying base and quote attributes. Requests that
// do not decode as a pair fail with ErrMalformedRequest instead of being denied
// silently.
type CedarPolicy struct {
	name string

	mu        sync.RWMutex
	policySet *cedar.PolicySet
}

var _ Policy = (*CedarPolicy)(nil)

// NewCedarPolicy parses policyBytes. An empty document denies everything.
func NewCedarPolicy(name string, policyBytes []byte) (*CedarPolicy, error) {
	ps, err := parseCedarPolicies(policyBytes)
	if err != nil {
		return nil, err
	}
	return &CedarPolicy{name: name, policySet: ps}, nil
}

// Reload replaces the policy set. On a parse error the previous set stays active.
func (p *CedarPolicy) Reload(policyBytes []byte) error {
	ps, err := parseCedarPolicies(policyBytes)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.policySet = ps
	p.mu.Unlock()
	return nil
}

func parseCedarPolicies(policyBytes []byte) (*cedar.PolicySet, error) {
	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Cedar policies: %w", err)
	}
	return ps, nil
}

// Name returns the policy reference name.
func (p *CedarPolicy) Name() string {
	return p.name
}

// Decision is the outcome of a Cedar evaluation. Reasons lists the policies
// that determined it; Errors lists policies that failed to evaluate and were
// skipped.
type Decision struct {
	Allowed bool
	Reasons []string
	Errors  []string
}

// HasAccess implements Policy.
func (p *CedarPolicy) HasAccess(ctx context.Context, caller string, data []byte) (bool, error) {
	decision, err := p.Evaluate(ctx, caller, data)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// Evaluate decodes data as a pair and evaluates the policy set for caller.
func (p *CedarPolicy) Evaluate(ctx context.Context, caller string, data []byte) (Decision, error) {
	base, quote, err := DecodePair(data)
	if err != nil {
		return Decision{}, err
	}

	principalUID := cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::Caller"), cedar.String(caller))
	resourceUID := cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::Pair"), cedar.String(base+"/"+quote))
	actionUID := cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::Action"), cedar.String("read"))

	entities := cedar.EntityMap{
		principalUID: cedar.Entity{
			UID:        principalUID,
			Attributes: cedar.NewRecord(cedar.RecordMap{}),
		},
		resourceUID: cedar.Entity{
			UID: resourceUID,
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"base":  cedar.String(base),
				"quote": cedar.String(quote),
			}),
		},
	}

	p.mu.RLock()
	ps := p.policySet
	p.mu.RUnlock()

	decision, diagnostic := cedar.Authorize(ps, entities, cedar.Request{
		Principal: principalUID,
		Action:    actionUID,
		Resource:  resourceUID,
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	})

	out := Decision{Allowed: decision == cedar.Allow}
	for _, r := range diagnostic.Reasons {
		out.Reasons = append(out.Reasons, string(r.PolicyID))
	}
	for _, e := range diagnostic.Errors {
		out.Errors = append(out.Errors, e.String())
	}

	if len(out.Errors) > 0 {
		slog.WarnContext(ctx, "Cedar policies failed to evaluate",
			"policy", p.name,
			"pair", base+"/"+quote,
			"errors", out.Errors,
		)
	}
	slog.DebugContext(ctx, "Cedar access decision",
		"policy", p.name,
		"caller", caller,
		"base", base,
		"quote", quote,
		"decision", decision,
		"reasons", out.Reasons,
	)
	return out, nil
}
