package evaluation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
)

// ErrMalformedResults is returned when the race result file cannot be read.
var ErrMalformedResults = errors.New("malformed race results")

// placeSlots is how many place payouts a result row carries.
const placeSlots = 3

// Payout is the return per 100 yen staked on one selection.
type Payout struct {
	Selection int
	Per100    int64
}

// RaceResult holds the settled payouts of one race.
type RaceResult struct {
	VenueCode  string
	RaceNumber int
	Win        []Payout
	Place      []Payout
}

// payout returns what a ticket on selection of betType pays per 100 yen.
func (r RaceResult) payout(betType string, selection int) (int64, bool) {
	var table []Payout
	switch betType {
	case bet.TypeWin:
		table = r.Win
	case bet.TypePlace:
		table = r.Place
	default:
		return 0, false
	}
	for _, p := range table {
		if p.Selection == selection {
			return p.Per100, true
		}
	}
	return 0, true
}

type raceKey struct {
	venue string
	race  int
}

// Results indexes race results by venue and race.
type Results map[raceKey]RaceResult

// Lookup finds the result of one race.
func (r Results) Lookup(venueCode string, race int) (RaceResult, bool) {
	res, ok := r[raceKey{venue: bet.NormalizeVenueCode(venueCode), race: race}]
	return res, ok
}

// ParseResults reads the daily race result export. A header row names the
// columns; PlaceCode, RaceNumber, Win_HorseNumber1 and Win_Payout1 are
// required and Place_HorseNumberN/Place_PayoutN are read when present.
func ParseResults(r io.Reader) (Results, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedResults, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"placecode", "racenumber", "win_horsenumber1", "win_payout1"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing %s column", ErrMalformedResults, required)
		}
	}

	out := Results{}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedResults, line, err)
		}
		res, err := resultFromRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedResults, line, err)
		}
		key := raceKey{venue: res.VenueCode, race: res.RaceNumber}
		if _, dup := out[key]; !dup {
			out[key] = res
		}
	}
	return out, nil
}

func resultFromRow(row []string, cols map[string]int) (RaceResult, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	race, err := strconv.Atoi(get("racenumber"))
	if err != nil {
		return RaceResult{}, fmt.Errorf("race number %q", get("racenumber"))
	}
	res := RaceResult{VenueCode: bet.NormalizeVenueCode(get("placecode")), RaceNumber: race}

	win, ok, err := payoutFrom(get("win_horsenumber1"), get("win_payout1"))
	if err != nil {
		return RaceResult{}, fmt.Errorf("win payout: %v", err)
	}
	if ok {
		res.Win = append(res.Win, win)
	}
	for n := 1; n <= placeSlots; n++ {
		p, ok, err := payoutFrom(get(fmt.Sprintf("place_horsenumber%d", n)), get(fmt.Sprintf("place_payout%d", n)))
		if err != nil {
			return RaceResult{}, fmt.Errorf("place payout %d: %v", n, err)
		}
		if ok {
			res.Place = append(res.Place, p)
		}
	}
	return res, nil
}

// payoutFrom parses one selection/payout pair. Blank or zero selections are
// empty slots.
func payoutFrom(selection, amount string) (Payout, bool, error) {
	if selection == "" || selection == "0" {
		return Payout{}, false, nil
	}
	sel, err := strconv.Atoi(selection)
	if err != nil {
		return Payout{}, false, fmt.Errorf("selection %q", selection)
	}
	per100, err := strconv.ParseInt(strings.ReplaceAll(amount, ",", ""), 10, 64)
	if err != nil {
		return Payout{}, false, fmt.Errorf("payout %q", amount)
	}
	return Payout{Selection: sel, Per100: per100}, true, nil
}
