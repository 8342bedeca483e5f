package classify

import (
	"fmt"
	"strings"
)

// Label is one of the department names the model may answer with.
type Label string

const (
	LabelSales     Label = "Sales"
	LabelSupport   Label = "Support"
	LabelBilling   Label = "Billing"
	LabelTechnical Label = "Technical"
	LabelGeneral   Label = "General"
)

// Labels is the closed label set offered to the model, in prompt order.
var Labels = []Label{LabelSales, LabelSupport, LabelBilling, LabelTechnical, LabelGeneral}

// CanonicalLabel maps a case-insensitive model answer onto the label set.
func CanonicalLabel(raw string) (Label, bool) {
	raw = strings.TrimSpace(raw)
	for _, label := range Labels {
		if strings.EqualFold(raw, string(label)) {
			return label, true
		}
	}
	return "", false
}

// BuildPrompt renders the classification instruction for a customer message.
func BuildPrompt(message string) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant for a business chat routing system.\n\n")
	b.WriteString("Classify the customer message into ONE of the following departments:\n")
	for _, label := range Labels {
		fmt.Fprintf(&b, "- %s\n", label)
	}
	b.WriteString("\nRespond ONLY with a single JSON object:\n")
	b.WriteString(`{"department": "<department_name>", "confidence": <number_between_0_and_1>}`)
	b.WriteString("\n\nMessage:\n")
	fmt.Fprintf(&b, "%q\n", message)
	return b.String()
}
