package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrClassification marks any classifier outcome that cannot be used to
// route: transport errors, timeouts, malformed or out-of-range answers and
// labels with no matching department. It never leaves the gateway.
var ErrClassification = errors.New("classification failed")

type answer struct {
	Department string   `json:"department"`
	Confidence *float64 `json:"confidence"`
}

// Answer is a validated model response.
type Answer struct {
	Label      Label
	Confidence float64
}

// Parse tries ParseStrict first and falls back to ParseLenient.
func Parse(text string) (Answer, error) {
	if out, err := ParseStrict(text); err == nil {
		return out, nil
	}
	return ParseLenient(text)
}

// ParseStrict accepts only a response that is exactly one JSON object.
func ParseStrict(text string) (Answer, error) {
	var raw answer
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return Answer{}, fmt.Errorf("%w: strict parse: %v", ErrClassification, err)
	}
	return raw.validate()
}

// ParseLenient scans for the first well-formed JSON object embedded in
// free text, such as a fenced code block or a sentence around the payload.
func ParseLenient(text string) (Answer, error) {
	lastErr := fmt.Errorf("%w: no JSON object in response", ErrClassification)
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var raw answer
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&raw); err == nil {
			out, vErr := raw.validate()
			if vErr == nil {
				return out, nil
			}
			lastErr = vErr
		}

		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return Answer{}, lastErr
}

func (a answer) validate() (Answer, error) {
	label, ok := CanonicalLabel(a.Department)
	if !ok {
		return Answer{}, fmt.Errorf("%w: unknown label %q", ErrClassification, a.Department)
	}
	if a.Confidence == nil {
		return Answer{}, fmt.Errorf("%w: missing confidence", ErrClassification)
	}
	if c := *a.Confidence; c < 0 || c > 1 {
		return Answer{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrClassification, c)
	}
	return Answer{Label: label, Confidence: *a.Confidence}, nil
}
