package status

import "strings"

// Classifier maps raw status responses to clearance outcomes using fixed
// keyword sets. The barcode-image fallback rule is an empirical workaround
// for portal responses that omit the status text; it is configurable because
// it is the most likely source of future misclassification.
type Classifier struct {
	clearedKeywords           []string
	transferKeywords          []string
	barcodeImagesImplyCleared bool
}

// NewClassifier builds a classifier. Keywords are matched case-insensitively
// as substrings of the response status text.
func NewClassifier(clearedKeywords, transferKeywords []string, barcodeImagesImplyCleared bool) *Classifier {
	return &Classifier{
		clearedKeywords:           lowerAll(clearedKeywords),
		transferKeywords:          lowerAll(transferKeywords),
		barcodeImagesImplyCleared: barcodeImagesImplyCleared,
	}
}

// Classify decides the clearance outcome of one response. Transfer keywords
// win over cleared keywords because the transfer wording usually embeds the
// clearance wording.
func (c *Classifier) Classify(result Result) Outcome {
	if result.HasError || !result.IsValid {
		return OutcomeInconclusive
	}

	text := strings.ToLower(result.StatusText)
	if text != "" {
		if matchesAny(text, c.transferKeywords) {
			return OutcomeTransfer
		}
		if matchesAny(text, c.clearedKeywords) {
			return OutcomeCleared
		}
		return OutcomePending
	}

	if result.HasBarcodeImages && c.barcodeImagesImplyCleared {
		return OutcomeCleared
	}
	return OutcomeInconclusive
}

func matchesAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
