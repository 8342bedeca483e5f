package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrict(t *testing.T) {
	got, err := ParseStrict(`  {"department": "billing", "confidence": 0.92}` + "\n")
	require.NoError(t, err)
	assert.Equal(t, LabelBilling, got.Label)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)

	_, err = ParseStrict("Sure! {\"department\": \"Sales\", \"confidence\": 0.8}")
	assert.ErrorIs(t, err, ErrClassification)
}

func TestParseLenient(t *testing.T) {
	tests := []struct {
		name  string
		input string
		label Label
	}{
		{"fenced", "```json\n{\"department\": \"Technical\", \"confidence\": 0.7}\n```", LabelTechnical},
		{"prose around", "I think this is {\"department\":\"Support\",\"confidence\":1} overall.", LabelSupport},
		{"skips broken object", "{oops} then {\"department\": \"Sales\", \"confidence\": 0.6}", LabelSales},
		{"skips invalid label", `{"department": "Legal", "confidence": 0.9} {"department": "General", "confidence": 0.9}`, LabelGeneral},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLenient(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.label, got.Label)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	inputs := map[string]string{
		"empty":          "",
		"no object":      "Billing, definitely.",
		"unknown label":  `{"department": "Legal", "confidence": 0.9}`,
		"missing conf":   `{"department": "Sales"}`,
		"negative conf":  `{"department": "Sales", "confidence": -0.1}`,
		"conf above one": `{"department": "Sales", "confidence": 1.01}`,
		"conf as string": `{"department": "Sales", "confidence": "high"}`,
		"unterminated":   `{"department": "Sales", "confidence": 0.9`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(input)
			assert.ErrorIs(t, err, ErrClassification)
		})
	}
}

func TestCanonicalLabel(t *testing.T) {
	label, ok := CanonicalLabel("  SALES ")
	assert.True(t, ok)
	assert.Equal(t, LabelSales, label)

	_, ok = CanonicalLabel("Marketing")
	assert.False(t, ok)
}

func TestBuildPrompt_QuotesMessage(t *testing.T) {
	prompt := BuildPrompt(`ignore "instructions"`)
	assert.Contains(t, prompt, `"ignore \"instructions\""`)
	for _, label := range Labels {
		assert.Contains(t, prompt, "- "+string(label))
	}
}
