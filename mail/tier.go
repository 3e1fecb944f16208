package mail

import (
	"encoding/json"
	"strings"
)

// Tier is the urgency classification of a message. Lower values are more
// urgent; the integer value doubles as the delivery-queue ordering key.
type Tier int

const (
	TierHigh Tier = iota
	TierMedium
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "medium"
	}
}

// Valid reports whether t is one of the three defined tiers.
func (t Tier) Valid() bool {
	return t >= TierHigh && t <= TierLow
}

// ParseTier maps a string to a Tier, case-insensitively. Anything
// unrecognized, including the empty string, is treated as TierMedium.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return TierHigh
	case "low":
		return TierLow
	default:
		return TierMedium
	}
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseTier(s)
	return nil
}
