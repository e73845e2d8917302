package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// document is the persisted JSON shape shared by the object and Postgres backends.
type document struct {
	TargetDate  string    `json:"target_date"`
	Tickets     []Record  `json:"tickets"`
	LastUpdated time.Time `json:"last_updated"`
}

func encodeDocument(targetDate string, entries Entries, now time.Time) ([]byte, error) {
	doc := document{TargetDate: targetDate, Tickets: Sorted(entries), LastUpdated: now}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeDocument(targetDate string, data []byte) (Entries, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger document: %w", err)
	}
	if doc.TargetDate != "" && doc.TargetDate != targetDate {
		return nil, fmt.Errorf("ledger document is for %s, not %s", doc.TargetDate, targetDate)
	}
	entries := make(Entries, len(doc.Tickets))
	for _, rec := range doc.Tickets {
		entries[rec.Identity(targetDate).Key()] = rec
	}
	return entries, nil
}
