package transform

import "fmt"

// Validation is the integrity check of one transform pass. Violations are
// recorded for operators, not raised as failures: rejecting every imperfect
// pass would make the pipeline too brittle for production traffic.
type Validation struct {
	Ratio  float64  `json:"ratio"`
	Issues []string `json:"issues,omitempty"`
}

// OK reports whether the pass stayed inside the acceptable ratio range.
func (v Validation) OK() bool { return len(v.Issues) == 0 }

// Validate compares the actual output/input ratio against the profile's
// acceptable range.
func Validate(inputLen, outputLen int, p Profile) Validation {
	v := Validation{}
	if inputLen <= 0 {
		return v
	}
	v.Ratio = float64(outputLen) / float64(inputLen)
	if v.Ratio < p.MinRatio {
		v.Issues = append(v.Issues, fmt.Sprintf(
			"%s: output/input ratio %.2f below %.2f, probable content over-deletion", p.Name, v.Ratio, p.MinRatio))
	}
	if v.Ratio > p.MaxRatio {
		v.Issues = append(v.Issues, fmt.Sprintf(
			"%s: output/input ratio %.2f above %.2f, insufficient compression", p.Name, v.Ratio, p.MaxRatio))
	}
	return v
}
