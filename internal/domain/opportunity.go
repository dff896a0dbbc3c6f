package domain

import (
	"math"
	"time"
)

// OpportunityType identifies the shape of an arbitrage candidate.
type OpportunityType string

const (
	OpportunityCrossDex   OpportunityType = "cross-dex"
	OpportunityCrossChain OpportunityType = "cross-chain"
	OpportunityBackrun    OpportunityType = "backrun"
)

// Opportunity is a candidate arbitrage action identified by id, produced by
// detector/analysis workers and consumed by the execution engine.
type Opportunity struct {
	ID              string
	Type            OpportunityType
	SourceChain     string
	DestChain       string
	ExpectedProfit  float64
	Confidence      float64
	Timestamp       time.Time
	ExpiresAt       time.Time
	Metadata        map[string]string
}

// Validate reports whether the opportunity is well-formed: a non-empty id,
// confidence at or above the configured threshold, and a finite,
// non-negative expected profit.
func (o Opportunity) Validate(minConfidence float64) error {
	if o.ID == "" {
		return ErrInvalidOpportunity
	}
	if o.Confidence < minConfidence {
		return ErrInvalidOpportunity
	}
	if math.IsNaN(o.ExpectedProfit) || math.IsInf(o.ExpectedProfit, 0) || o.ExpectedProfit < 0 {
		return ErrInvalidOpportunity
	}
	return nil
}

// Expired reports whether the opportunity's ExpiresAt has passed relative to
// now. An opportunity with a zero ExpiresAt never expires.
func (o Opportunity) Expired(now time.Time) bool {
	if o.ExpiresAt.IsZero() {
		return false
	}
	return now.After(o.ExpiresAt)
}
