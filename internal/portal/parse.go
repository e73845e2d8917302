package portal

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var (
	labelledBalance = regexp.MustCompile(`(?:購入限度額|残高)[^0-9]*([0-9,]+)\s*円`)
	anyYen          = regexp.MustCompile(`([0-9,]+)\s*円`)
)

func parseBalance(text string) (int64, error) {
	m := labelledBalance.FindStringSubmatch(text)
	if m == nil {
		m = anyYen.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, ErrBalanceUnreadable
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBalanceUnreadable, err)
	}
	return v, nil
}

// decodeText returns data as UTF-8, treating anything that is not valid
// UTF-8 as Shift_JIS, which is what the portal exports.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), japanese.ShiftJIS.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("decode shift_jis: %w", err)
	}
	return string(out), nil
}

func parseInquiryCSV(data []byte, cols Columns) ([]Transaction, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read inquiry csv: %w", err)
	}
	return transactionsFromRows(rows, cols), nil
}

func parseInquiryText(text string, cols Columns) []Transaction {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	return transactionsFromRows(rows, cols)
}

// transactionsFromRows skips rows that do not parse, such as headers and totals.
func transactionsFromRows(rows [][]string, cols Columns) []Transaction {
	var out []Transaction
	for _, row := range rows {
		tx, ok := transactionFromRow(row, cols)
		if ok {
			out = append(out, tx)
		}
	}
	return out
}

func transactionFromRow(row []string, cols Columns) (Transaction, bool) {
	field := func(i int) (string, bool) {
		if i < 0 || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}
	venue, ok1 := field(cols.Venue)
	race, ok2 := field(cols.Race)
	kind, ok3 := field(cols.BetType)
	sel, ok4 := field(cols.Selection)
	amount, ok5 := field(cols.Amount)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || venue == "" {
		return Transaction{}, false
	}
	raceNo, err := strconv.Atoi(strings.TrimSuffix(strings.ToUpper(race), "R"))
	if err != nil {
		return Transaction{}, false
	}
	selNo, err := strconv.Atoi(sel)
	if err != nil {
		return Transaction{}, false
	}
	amt, err := parseYen(amount)
	if err != nil {
		return Transaction{}, false
	}
	return Transaction{VenueName: venue, RaceNumber: raceNo, BetType: kind, SelectionNumber: selNo, Amount: amt}, true
}

func parseYen(s string) (int64, error) {
	s = strings.NewReplacer(",", "", "円", "", " ", "").Replace(s)
	return strconv.ParseInt(s, 10, 64)
}
