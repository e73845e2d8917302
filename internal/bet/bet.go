package bet

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInstruction wraps every validation failure of caller supplied bets.
var ErrInvalidInstruction = errors.New("invalid bet instruction")

// Bet types understood by the portal.
const (
	TypeWin   = "WIN"
	TypePlace = "PLACE"
)

const (
	maxRaceNumber      = 12
	maxSelectionNumber = 18
)

var betTypeLabels = map[string]string{
	TypeWin:   "単勝",
	TypePlace: "複勝",
}

// Instruction is a caller supplied request to place one wager.
type Instruction struct {
	VenueCode       string `json:"venue_code" yaml:"venue_code"`
	RaceNumber      int    `json:"race_number" yaml:"race_number"`
	SelectionNumber int    `json:"selection_number" yaml:"selection_number"`
	BetType         string `json:"bet_type,omitempty" yaml:"bet_type,omitempty"`
	// Amount overrides stake allocation when set.
	Amount        *int64 `json:"amount,omitempty" yaml:"amount,omitempty"`
	SelectionName string `json:"selection_name,omitempty" yaml:"selection_name,omitempty"`
}

// Identity is the natural key of a bet within a target date.
type Identity struct {
	TargetDate      string `json:"target_date"`
	VenueCode       string `json:"venue_code"`
	RaceNumber      int    `json:"race_number"`
	SelectionNumber int    `json:"selection_number"`
	BetType         string `json:"bet_type"`
}

// Key renders the identity as a stable string usable as a map or storage key.
func (id Identity) Key() string {
	return fmt.Sprintf("%s:%s:%02d:%02d:%s", id.TargetDate, id.VenueCode, id.RaceNumber, id.SelectionNumber, id.BetType)
}

// String is a human readable form used in logs and notifications.
func (id Identity) String() string {
	return fmt.Sprintf("%s %dR #%d %s", VenueName(id.VenueCode), id.RaceNumber, id.SelectionNumber, id.BetType)
}

// Identity binds the instruction to a target date.
func (in Instruction) Identity(targetDate string) Identity {
	return Identity{
		TargetDate:      targetDate,
		VenueCode:       in.VenueCode,
		RaceNumber:      in.RaceNumber,
		SelectionNumber: in.SelectionNumber,
		BetType:         in.normalizedType(),
	}
}

func (in Instruction) normalizedType() string {
	t := strings.ToUpper(strings.TrimSpace(in.BetType))
	if t == "" {
		return TypeWin
	}
	for code, label := range betTypeLabels {
		if in.BetType == label {
			return code
		}
	}
	return t
}

// Normalize fills defaults and canonicalizes codes without validating.
func (in Instruction) Normalize() Instruction {
	in.VenueCode = NormalizeVenueCode(in.VenueCode)
	in.BetType = in.normalizedType()
	in.SelectionName = strings.TrimSpace(in.SelectionName)
	return in
}

// Validate checks a normalized instruction.
func (in Instruction) Validate() error {
	if _, ok := LookupVenue(in.VenueCode); !ok {
		return fmt.Errorf("%w: unknown venue code %q", ErrInvalidInstruction, in.VenueCode)
	}
	if in.RaceNumber < 1 || in.RaceNumber > maxRaceNumber {
		return fmt.Errorf("%w: race number %d out of range", ErrInvalidInstruction, in.RaceNumber)
	}
	if in.SelectionNumber < 1 || in.SelectionNumber > maxSelectionNumber {
		return fmt.Errorf("%w: selection number %d out of range", ErrInvalidInstruction, in.SelectionNumber)
	}
	if _, ok := betTypeLabels[in.BetType]; !ok {
		return fmt.Errorf("%w: unsupported bet type %q", ErrInvalidInstruction, in.BetType)
	}
	if in.Amount != nil && *in.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInstruction)
	}
	return nil
}

// TypeLabel returns the label the portal shows for a bet type.
func TypeLabel(betType string) string {
	if label, ok := betTypeLabels[betType]; ok {
		return label
	}
	return betType
}

// Prepare normalizes and validates a request's bets and rejects duplicated
// identities. The returned slice preserves input order.
func Prepare(targetDate string, in []Instruction) ([]Instruction, error) {
	out := make([]Instruction, 0, len(in))
	seen := make(map[string]int, len(in))
	for i, raw := range in {
		inst := raw.Normalize()
		if err := inst.Validate(); err != nil {
			return nil, fmt.Errorf("bet %d: %w", i+1, err)
		}
		key := inst.Identity(targetDate).Key()
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: bet %d duplicates bet %d", ErrInvalidInstruction, i+1, prev)
		}
		seen[key] = i + 1
		out = append(out, inst)
	}
	return out, nil
}
