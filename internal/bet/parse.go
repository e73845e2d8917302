package bet

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// column aliases: canonical names first, then the prediction export headers.
var columnAliases = map[string][]string{
	"venue":     {"venue_code", "venue", "placename", "place_name", "race_course"},
	"race":      {"race_number", "racenumber", "race"},
	"selection": {"selection_number", "horsenumber", "horse_number", "umaban"},
	"bet_type":  {"bet_type", "bettype"},
	"amount":    {"amount", "stake"},
	"name":      {"selection_name", "horsename", "horse_name"},
}

// ParseFile decodes bets according to the file extension (.csv, .yaml/.yml, .json).
func ParseFile(name string, r io.Reader) ([]Instruction, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ParseCSV(r)
	case ".yaml", ".yml":
		return ParseYAML(r)
	case ".json":
		return ParseJSON(r)
	default:
		return nil, fmt.Errorf("%w: unsupported bet file %q", ErrInvalidInstruction, name)
	}
}

// ParseCSV reads a header row followed by one bet per row. The venue column
// accepts codes or names.
func ParseCSV(r io.Reader) ([]Instruction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidInstruction, err)
	}
	cols := indexColumns(header)
	for _, required := range []string{"venue", "race", "selection"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing %s column", ErrInvalidInstruction, required)
		}
	}

	var out []Instruction
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInstruction, line, err)
		}
		if blankRow(row) {
			continue
		}
		inst, err := instructionFromRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// ParseYAML reads a YAML sequence of bets.
func ParseYAML(r io.Reader) ([]Instruction, error) {
	var out []Instruction
	if err := yaml.NewDecoder(r).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidInstruction, err)
	}
	return out, nil
}

// ParseJSON reads a JSON array of bets.
func ParseJSON(r io.Reader) ([]Instruction, error) {
	var out []Instruction
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidInstruction, err)
	}
	return out, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for field, aliases := range columnAliases {
			if _, taken := cols[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if h == alias {
					cols[field] = i
					break
				}
			}
		}
	}
	return cols
}

func instructionFromRow(row []string, cols map[string]int) (Instruction, error) {
	get := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	venue, ok := VenueByName(get("venue"))
	if !ok {
		return Instruction{}, fmt.Errorf("%w: unknown venue %q", ErrInvalidInstruction, get("venue"))
	}
	race, err := strconv.Atoi(strings.TrimSuffix(strings.ToUpper(get("race")), "R"))
	if err != nil {
		return Instruction{}, fmt.Errorf("%w: race number %q", ErrInvalidInstruction, get("race"))
	}
	selection, err := strconv.Atoi(get("selection"))
	if err != nil {
		return Instruction{}, fmt.Errorf("%w: selection number %q", ErrInvalidInstruction, get("selection"))
	}

	inst := Instruction{
		VenueCode:       venue.Code,
		RaceNumber:      race,
		SelectionNumber: selection,
		BetType:         get("bet_type"),
		SelectionName:   get("name"),
	}
	if raw := get("amount"); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Instruction{}, fmt.Errorf("%w: amount %q", ErrInvalidInstruction, raw)
		}
		inst.Amount = &amount
	}
	return inst, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
