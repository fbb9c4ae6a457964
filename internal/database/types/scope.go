package types

import (
	"errors"
	"time"
)

var ErrScopeNotFound = errors.New("scope not found")

// Scope represents a group or channel that actors post into.
type Scope struct {
	ID          uint64    `bun:",pk"                    json:"id"`
	Name        string    `bun:",notnull"               json:"name"`
	Description string    `bun:",notnull,default:''"    json:"description"`
	HasConfig   bool      `bun:",notnull,default:false" json:"hasConfig"`
	CreatedAt   time.Time `bun:",notnull"               json:"createdAt"`
	UpdatedAt   time.Time `bun:",notnull"               json:"updatedAt"`
}

// ScopeConfig holds the moderation settings for a scope. It is a read-only
// input to the context aggregator; an explicit initialization step outside
// the core creates it.
type ScopeConfig struct {
	ScopeID             uint64          `bun:",pk"                  json:"scopeId"`
	ConfidenceThreshold float64         `bun:",notnull,default:0.7" json:"confidenceThreshold"`
	RulesText           string          `bun:",notnull,default:''"  json:"rulesText"`
	FeaturesEnabled     map[string]bool `bun:",type:jsonb"          json:"featuresEnabled"`
	Personality         string          `bun:",notnull,default:''"  json:"personality"`
	UpdatedAt           time.Time       `bun:",notnull"             json:"updatedAt"`
}

// FeatureEnabled reports whether a moderation feature flag is set. Missing
// flags default to enabled, matching how scopes behave before they are tuned.
func (c *ScopeConfig) FeatureEnabled(name string) bool {
	if c.FeaturesEnabled == nil {
		return true
	}

	enabled, ok := c.FeaturesEnabled[name]
	if !ok {
		return true
	}

	return enabled
}
