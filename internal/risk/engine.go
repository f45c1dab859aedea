// Package risk scores login attempts against the account's previous risk snapshot.
//
// Scoring is additive: every rule is evaluated independently and the weights of the rules
// that fire are summed and capped at MaxScore. The engine performs no I/O and never fails;
// signals with missing fields simply contribute nothing.
package risk

import (
	"strings"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
)

const (
	MaxScore        = 100
	HighThreshold   = 70
	MediumThreshold = 40

	NormalActivityReason = "Normal activity"
	TrustedDeviceReason  = "Trusted device"
)

// Factor is one fired rule and its contribution to the score.
type Factor struct {
	Rule        RuleID `json:"rule"`
	Weight      int    `json:"weight"`
	Description string `json:"description"`
}

// Assessment is the outcome of scoring a single attempt.
type Assessment struct {
	Score         int
	Level         models.RiskLevel
	Factors       []Factor
	TrustedDevice bool
}

// Reason renders the fired rules as a display string.
func (a Assessment) Reason() string {
	if a.TrustedDevice {
		return TrustedDeviceReason
	}
	if len(a.Factors) == 0 {
		return NormalActivityReason
	}
	descriptions := make([]string, len(a.Factors))
	for i, f := range a.Factors {
		descriptions[i] = f.Description
	}
	return strings.Join(descriptions, ", ")
}

// RuleIDs returns the identifiers of the fired rules in evaluation order.
func (a Assessment) RuleIDs() []string {
	ids := make([]string, len(a.Factors))
	for i, f := range a.Factors {
		ids[i] = string(f.Rule)
	}
	return ids
}

// Fired reports whether the given rule contributed to the score.
func (a Assessment) Fired(id RuleID) bool {
	for _, f := range a.Factors {
		if f.Rule == id {
			return true
		}
	}
	return false
}

// LevelFor maps a score onto its tier.
func LevelFor(score int) models.RiskLevel {
	switch {
	case score >= HighThreshold:
		return models.RiskLevelHigh
	case score >= MediumThreshold:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// DeviceSet holds the device identifiers an account has confirmed through a passed challenge.
type DeviceSet map[string]struct{}

func NewDeviceSet(ids ...string) DeviceSet {
	set := make(DeviceSet, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func (s DeviceSet) Contains(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s[id]
	return ok
}

// Engine evaluates the rule set. The zero value is not usable; use NewEngine.
type Engine struct {
	rules []Rule
	now   func() time.Time
}

// NewEngine creates an engine with the default rule set in its fixed evaluation order.
func NewEngine() *Engine {
	return &Engine{
		rules: DefaultRules(),
		now:   time.Now,
	}
}

// WithClock returns a copy of the engine that reads the wall clock from now.
// The clock is only consulted for signals without a timestamp.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	return &Engine{rules: e.rules, now: now}
}

// Score computes the risk of current given the account's latest snapshot (nil for a new account)
// and its trusted devices.
func (e *Engine) Score(current models.LoginSignal, last *models.RiskRecord, trusted DeviceSet) Assessment {
	if trusted.Contains(current.DeviceID) {
		return Assessment{Score: 0, Level: models.RiskLevelLow, TrustedDevice: true}
	}

	at := current.Timestamp
	if at.IsZero() {
		at = e.now()
	}
	attempt := &Attempt{Current: current, Last: last, At: at.UTC()}

	var (
		score   int
		factors []Factor
	)
	for _, r := range e.rules {
		f, ok := r.Evaluate(attempt)
		if !ok {
			continue
		}
		score += f.Weight
		factors = append(factors, f)
	}

	if score > MaxScore {
		score = MaxScore
	}

	return Assessment{
		Score:   score,
		Level:   LevelFor(score),
		Factors: factors,
	}
}
