package extract

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// NotFound is the sentinel returned when a field could not be located
// in the OCR text.
const NotFound = "NOT_FOUND"

// Extraction patterns. OCR output is noisy, so each field is matched
// independently and the first hit wins.
var (
	// operationCodeRe matches the first run of 7 or more digits bounded
	// by word boundaries.
	operationCodeRe = regexp.MustCompile(`\b\d{7,}\b`)

	// amountRe matches a currency-prefixed amount with grouped
	// thousands and exactly two decimal digits, e.g. "S/ 1,234.56".
	amountRe = regexp.MustCompile(`S/\s*(\d{1,3}(?:,\d{3})*\.\d{2})`)

	// dateRe matches a day, abbreviated month and year, e.g. "15 Jun. 2024".
	dateRe = regexp.MustCompile(`\d{1,2} [A-Za-z]{3}\.? \d{4}`)

	// timeRe matches an hour and minute with an a.m./p.m. marker.
	timeRe = regexp.MustCompile(`\d{1,2}:\d{2} [ap]\.m\.`)
)

// Targets holds the expected recipient identity a valid receipt must
// mention. Both values come from configuration, never from code.
type Targets struct {
	Name  string
	Phone string
}

// Fields is the structured result of extracting one OCR text.
type Fields struct {
	OperationCode string
	Amount        string
	Date          string
	Valid         bool
}

// OperationCode extracts the payment operation code from OCR text.
func OperationCode(text string) string {
	if m := operationCodeRe.FindString(text); m != "" {
		return m
	}
	return NotFound
}

// Amount extracts the monetary amount from OCR text, without the
// currency prefix.
func Amount(text string) string {
	if m := amountRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return NotFound
}

// DateTime extracts the receipt date and, when present, the time of
// day. If only one fragment is found, that fragment is returned alone.
func DateTime(text string) string {
	date := dateRe.FindString(text)
	clock := timeRe.FindString(text)

	switch {
	case date != "" && clock != "":
		return date + " " + clock
	case date != "":
		return date
	case clock != "":
		return clock
	default:
		return NotFound
	}
}

// Extract runs all field extractors over the OCR text and applies the
// validity rule: every field must resolve and the text must mention
// both configured identity targets.
func Extract(text string, targets Targets) Fields {
	fields := Fields{
		OperationCode: OperationCode(text),
		Amount:        Amount(text),
		Date:          DateTime(text),
	}

	fields.Valid = fields.OperationCode != NotFound &&
		fields.Amount != NotFound &&
		fields.Date != NotFound &&
		matchesTargets(text, targets)

	return fields
}

// matchesTargets checks the recipient identity: name match is
// case-insensitive, phone match is an exact substring. Missing
// configuration is an operator error and never marks a receipt valid.
func matchesTargets(text string, targets Targets) bool {
	if targets.Name == "" || targets.Phone == "" {
		logrus.Error("Validation target name or phone not configured, marking receipt invalid")
		return false
	}

	nameMatch := strings.Contains(strings.ToLower(text), strings.ToLower(targets.Name))
	phoneMatch := strings.Contains(text, targets.Phone)

	return nameMatch && phoneMatch
}
