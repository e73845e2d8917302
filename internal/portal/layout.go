package portal

import "github.com/akatsuki-labs/akatsuki/internal/browser"

// Target names a clickable element by tag and visible text.
type Target struct {
	Tag   string
	Text  string
	Match browser.Match
}

// Columns are zero-based positions of inquiry fields.
type Columns struct {
	Venue     int
	Race      int
	BetType   int
	Selection int
	Amount    int
}

// Layout holds every selector and marker the flows depend on.
type Layout struct {
	URL string

	IdentifierInput  string
	IdentifierSubmit string
	AccountInput     string
	PINInput         string
	CodeInput        string
	AccountSubmit    string

	LoginMarkers         []string
	AuthenticatedMarkers []string
	ErrorMarkers         []string

	Top           Target
	PurchaseMenu  Target
	BetTypeSelect string
	// SelectionLabelOffset is added to the selection number to index the
	// selection labels of the race card.
	SelectionLabelOffset int
	SetButton            Target
	FinishButton         Target
	// TicketUnit is the yen value of one ticket unit in UnitInputs.
	TicketUnit           int64
	UnitInputs           []int
	TotalInput           int
	ConfirmButton        Target
	SuccessIndicator     Target

	FundsMenu     Target
	DepositLink   Target
	DepositAmount string
	DepositNext   Target
	DepositPIN    string
	DepositSubmit Target

	InquiryMenu Target
	// InquiryExport, when set, is clicked to download the inquiry as CSV;
	// otherwise InquiryTable's text is parsed.
	InquiryExport  string
	InquiryTable   string
	InquiryColumns Columns
}

// DefaultLayout returns the layout of the JRA IPAT portal.
func DefaultLayout(url string) Layout {
	return Layout{
		URL: url,

		IdentifierInput:  `input[name="inetid"]`,
		IdentifierSubmit: ".button",
		AccountInput:     `input[name="i"]`,
		PINInput:         `input[name="p"]`,
		CodeInput:        `input[name="r"]`,
		AccountSubmit:    ".buttonModern",

		LoginMarkers:         []string{"INET-ID", "加入者番号", "暗証番号", "P-ARS番号"},
		AuthenticatedMarkers: []string{"通常投票", "入出金"},
		ErrorMarkers:         []string{"エラー", "入力してください", "正しく"},

		Top:                  Target{Tag: "button", Text: "トップ", Match: browser.Contains},
		PurchaseMenu:         Target{Tag: "button", Text: "通常投票", Match: browser.Contains},
		BetTypeSelect:        "select",
		SelectionLabelOffset: 8,
		SetButton:            Target{Tag: "button", Text: "セット", Match: browser.Exact},
		FinishButton:         Target{Tag: "button", Text: "入力終了", Match: browser.Exact},
		TicketUnit:           100,
		UnitInputs:           []int{9, 10},
		TotalInput:           11,
		ConfirmButton:        Target{Tag: "button", Text: "購入する", Match: browser.Exact},
		SuccessIndicator:     Target{Tag: "button", Text: "OK", Match: browser.Exact},

		FundsMenu:     Target{Tag: "button", Text: "入出金", Match: browser.Contains},
		DepositLink:   Target{Tag: "a", Text: "入金指示", Match: browser.Contains},
		DepositAmount: `input[name="NYUKIN"]`,
		DepositNext:   Target{Text: "次へ", Match: browser.Exact},
		DepositPIN:    `input[name="PASS_WORD"]`,
		DepositSubmit: Target{Text: "実行", Match: browser.Exact},

		InquiryMenu:    Target{Tag: "button", Text: "照会", Match: browser.Contains},
		InquiryTable:   "table",
		InquiryColumns: Columns{Venue: 0, Race: 1, BetType: 2, Selection: 3, Amount: 4},
	}
}
