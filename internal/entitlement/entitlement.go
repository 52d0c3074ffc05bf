// Package entitlement maps subscription tiers to the features they unlock.
//
// Tiers are ordered: every feature available to a tier is also available to
// all higher tiers. The audio core never consults this package; only the
// command-line shell does, before it starts a feature.
package entitlement

import (
	"fmt"
	"slices"
	"strings"
)

// Tier is a subscription level.
type Tier int

const (
	Free Tier = iota
	Spark
	Glow
	Radiance
)

var tierNames = [...]string{"free", "spark", "glow", "radiance"}

// String returns the tier name.
func (t Tier) String() string {
	if t < Free || t > Radiance {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier parses a tier name case-insensitively. The empty string is Free.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Free, nil
	}
	if i := slices.Index(tierNames[:], s); i >= 0 {
		return Tier(i), nil
	}
	return Free, fmt.Errorf("entitlement: unknown tier %q; valid values: %s", s, strings.Join(tierNames[:], ", "))
}

// Feature identifies a gated capability.
type Feature string

const (
	Meditation Feature = "meditation"
	Companion  Feature = "companion"
	SleepStory Feature = "sleep_story"
	Soundscape Feature = "soundscape"
)

// required lists the lowest tier that unlocks each feature.
var required = map[Feature]Tier{
	Meditation: Free,
	Companion:  Glow,
	SleepStory: Radiance,
	Soundscape: Free,
}

// Required returns the lowest tier that unlocks f. Unknown features require
// Radiance.
func Required(f Feature) Tier {
	if t, ok := required[f]; ok {
		return t
	}
	return Radiance
}

// Allows reports whether t unlocks f.
func Allows(t Tier, f Feature) bool {
	return t >= Required(f)
}

// Features returns every feature t unlocks, sorted by name.
func Features(t Tier) []Feature {
	var out []Feature
	for f := range required {
		if Allows(t, f) {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return out
}

// LockedError reports a feature the current tier does not unlock.
type LockedError struct {
	Feature  Feature
	Current  Tier
	Required Tier
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s requires the %s tier (current: %s)", e.Feature, e.Required, e.Current)
}

// Check returns a [*LockedError] if t does not unlock f.
func Check(t Tier, f Feature) error {
	if Allows(t, f) {
		return nil
	}
	return &LockedError{Feature: f, Current: t, Required: Required(f)}
}
