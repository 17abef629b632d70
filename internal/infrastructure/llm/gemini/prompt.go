package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

var hintGuidance = map[domain.DocumentTypeHint]string{
	domain.HintGeneric: "It could be any type of document like a form, ID card, handwritten note, or certificate.",
	domain.HintIDCard:  "This is an ID card. Prioritize extracting fields like 'First Name', 'Last Name', 'Date of Birth', 'ID Number', 'Address', 'Gender', 'Issue Date', and 'Expiration Date'.",
	domain.HintInvoice: "This is an invoice. Prioritize extracting fields like 'Invoice Number', 'Issue Date', 'Due Date', 'Billed To', 'From', 'Subtotal', 'Tax', 'Total Amount', and any line items with description and price.",
	domain.HintReceipt: "This is a receipt. Prioritize extracting fields like 'Merchant Name', 'Date', 'Time', 'Total Amount', 'Tax', 'Payment Method', and a list of purchased items.",
}

func guidanceFor(hint domain.DocumentTypeHint) string {
	if guidance, ok := hintGuidance[hint]; ok {
		return guidance
	}
	return hintGuidance[domain.HintGeneric]
}

func buildExtractionPrompt(hint domain.DocumentTypeHint) string {
	return fmt.Sprintf(`You are an expert Optical Character Recognition (OCR) system.
Analyze the provided image of a document.
CONTEXT: %s

Extract all identifiable fields and their corresponding values based on the provided context.
Return the result as a single, clean JSON object.
The keys should be descriptive, human-readable labels for the fields (e.g., 'First Name', 'Date of Birth', 'Address').
The values should be the text extracted for those fields.
Do not include any explanatory text, markdown fences, or backticks in your response.
Only return the raw JSON object. If no data can be extracted, return an empty JSON object {}.
`, guidanceFor(hint))
}

func buildVerificationPrompt(fields domain.FieldMap) (string, error) {
	encoded, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal fields for verification: %w", err)
	}
	return `You are an expert document verifier. You are given an image of a document and a JSON object of data that was supposedly extracted from it.
Carefully compare each field from the JSON object with the information present in the image.

For each field, determine if the provided value matches the image.
Provide your verification results in a single JSON object.
The keys of this JSON object must be the exact same keys as in the input JSON.
For each key, the value must be an object with two properties:
1. "match": a boolean, true if the value matches the image, false otherwise.
2. "reason": a brief, one-sentence string explaining the mismatch. Omit it or leave it empty when the value matches.

Data to verify:
` + string(encoded), nil
}

func buildQualityPrompt() string {
	return `You are an expert image quality analyst specializing in Optical Character Recognition (OCR).
Analyze the provided image of a document and determine if its quality is sufficient for accurate OCR.
Consider blurriness, glare, shadows, contrast, lighting, resolution, and whether the document is oriented correctly (not upside down or sideways).

Respond with a JSON object with the following fields:
1. "isGoodQuality": true if the image is good enough for reliable OCR, false otherwise. Generally, a score of 70 or above is considered good quality.
2. "score": an integer from 0 to 100 for the overall OCR quality of the image. 0 is completely unreadable, 100 is perfect.
3. "feedback": an array of short, actionable strings telling the user how to improve the image, for example "Image appears blurry, try to hold the camera steady." If the quality is perfect, return a message like "Excellent image quality."
`
}

// qualityResponseSchema constrains the model's output format.
var qualityResponseSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"isGoodQuality": map[string]any{"type": "BOOLEAN"},
		"score":         map[string]any{"type": "INTEGER"},
		"feedback": map[string]any{
			"type":  "ARRAY",
			"items": map[string]any{"type": "STRING"},
		},
	},
	"required": []string{"isGoodQuality", "score", "feedback"},
}
