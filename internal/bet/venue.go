package bet

import (
	"fmt"
	"strconv"
	"strings"
)

// Venue describes a racecourse.
type Venue struct {
	Code   string
	Name   string
	Romaji string
}

var venues = []Venue{
	{"01", "札幌", "Sapporo"},
	{"02", "函館", "Hakodate"},
	{"03", "福島", "Fukushima"},
	{"04", "新潟", "Niigata"},
	{"05", "東京", "Tokyo"},
	{"06", "中山", "Nakayama"},
	{"07", "中京", "Chukyo"},
	{"08", "京都", "Kyoto"},
	{"09", "阪神", "Hanshin"},
	{"10", "小倉", "Kokura"},
}

// LookupVenue finds a venue by code.
func LookupVenue(code string) (Venue, bool) {
	for _, v := range venues {
		if v.Code == code {
			return v, true
		}
	}
	return Venue{}, false
}

// VenueByName resolves a Japanese or romaji venue name, or a code.
func VenueByName(name string) (Venue, bool) {
	name = strings.TrimSpace(name)
	for _, v := range venues {
		if v.Name == name || strings.EqualFold(v.Romaji, name) || v.Code == NormalizeVenueCode(name) {
			return v, true
		}
	}
	return Venue{}, false
}

// VenueName returns the display name for code, or code itself when unknown.
func VenueName(code string) string {
	if v, ok := LookupVenue(code); ok {
		return v.Name
	}
	return code
}

// NormalizeVenueCode left-pads numeric codes to two digits.
func NormalizeVenueCode(code string) string {
	code = strings.TrimSpace(code)
	if n, err := strconv.Atoi(code); err == nil && n >= 0 && n < 100 {
		return fmt.Sprintf("%02d", n)
	}
	return code
}
