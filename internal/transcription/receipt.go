package transcription

import "encoding/json"

// Receipt is the structured form of a transcribed receipt. Every field is
// nullable: values the model did not find stay nil, never fabricated.
type Receipt struct {
	Store *string    `json:"store"`
	Tel   *string    `json:"tel"`
	Date  *string    `json:"date"`
	Time  *string    `json:"time"`
	Items []LineItem `json:"items"`
	Total *float64   `json:"total"`
}

// LineItem is one purchased line on a receipt.
type LineItem struct {
	Name      *string  `json:"name"`
	UnitPrice *float64 `json:"unit_price"`
	Quantity  *float64 `json:"quantity"`
	Price     *float64 `json:"price"`
}

// Transcription is the result of one transcription request. Parsed holds the
// extracted JSON object verbatim and is what gets persisted; Receipt is a
// best-effort typed decode of it and is nil when the model's object does not
// match the schema.
type Transcription struct {
	ID       string          `json:"id"`
	Filename string          `json:"filename"`
	Text     string          `json:"text"`
	Parsed   json.RawMessage `json:"parsed"`
	Receipt  *Receipt        `json:"-"`
	Saved    bool            `json:"saved"`
}
