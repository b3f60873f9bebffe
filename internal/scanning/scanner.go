package scanning

import "context"

// receiptPrompt is the shared prompt sent to every vision provider. The model
// is instructed to answer with pure JSON so the extractor can slice out the
// object without negotiating prose.
const receiptPrompt = `This image is a photo of a store receipt. Read all text in the image and extract the following fields. You must respond with JSON only.

JSON schema to return:
{
  "store": string|null,      // store or merchant name
  "tel": string|null,        // phone number printed on the receipt
  "date": string|null,       // purchase date (YYYY-MM-DD)
  "time": string|null,       // purchase time (HH:MM)
  "items": [
    {
      "name": string|null,       // product name
      "unit_price": number|null, // unit price
      "quantity": number|null,   // quantity purchased
      "price": number|null       // line subtotal (unit price x quantity)
    }
  ],
  "total": number|null       // grand total charged
}

Set any field you cannot find to null. Return pure JSON with no extra commentary, no text before or after the JSON, and no markdown code blocks.`

// Scanner defines the interface for vision-model receipt scanning.
// Implementations normalize the provider's response shape down to the plain
// text of the reply; everything past this boundary only sees text.
type Scanner interface {
	// Configured reports whether the provider credential is set. Callers
	// check this before Scan to fail fast without a network call.
	Configured() bool

	// Scan submits the image and the receipt prompt as a single-turn
	// multimodal request and returns the model's reply text.
	Scan(ctx context.Context, imageData []byte, contentType string) (string, error)

	// Close releases provider resources.
	Close() error
}
