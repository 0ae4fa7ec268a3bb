package extract

import "strings"

// NoFieldsMessage is the answer when nothing could be extracted.
const NoFieldsMessage = "No extractable fields found in the retrieved evidence (try increasing top-k or asking a more specific question)."

type labeledField struct {
	field string
	label string
}

var answerOrder = []labeledField{
	{"claim_reference", "Claim reference"},
	{"policy_number", "Policy number"},
	{"incident_date", "Incident date"},
	{"incident_time", "Incident time"},
	{"incident_location", "Incident location"},
	{"police_reference", "Police reference"},
	{"total_claimed", "Total claimed"},
	{"repair_estimate", "Repair estimate"},
	{"hire_charges", "Hire charges"},
	{"general_damages", "General damages"},
	{"special_damages", "Special damages"},
	{"suggested_reserve", "Suggested reserve"},
	{"suggested_settlement", "Suggested settlement"},
	{"injuries", "Injuries"},
	{"fraud_indicators", "Fraud indicators"},
}

// ComposeAnswer renders extracted fields as markdown bullets in a fixed order.
// Fields outside that order are not rendered.
func ComposeAnswer(fields map[string]string) string {
	var lines []string
	for _, lf := range answerOrder {
		if v, ok := fields[lf.field]; ok {
			lines = append(lines, "- **"+lf.label+":** "+v)
		}
	}
	if len(lines) == 0 {
		return NoFieldsMessage
	}
	return strings.Join(lines, "\n")
}
