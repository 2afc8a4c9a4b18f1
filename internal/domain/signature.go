package domain

import (
	"encoding/json"
	"regexp"
	"strings"
)

// StateSignature is the embedded matcher used to recognize a Screen from a
// live observation. URL pattern is mandatory; title pattern is optional;
// indicators must all be present and negative indicators must all be absent.
type StateSignature struct {
	URLPattern         string   `json:"url_pattern"`
	TitlePattern       string   `json:"title_pattern,omitempty"`
	Indicators         []string `json:"indicators,omitempty"`
	NegativeIndicators []string `json:"negative_indicators,omitempty"`
}

func (s StateSignature) MatchURL(url string) bool {
	p := strings.TrimSpace(s.URLPattern)
	if p == "" {
		return false
	}
	re, err := regexp.Compile(p)
	if err != nil {
		// A signature with a broken pattern matches nothing.
		return false
	}
	return re.MatchString(url)
}

func (s StateSignature) MatchTitle(title string) bool {
	p := strings.TrimSpace(s.TitlePattern)
	if p == "" {
		return true
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return false
	}
	return re.MatchString(title)
}

// Specificity is the disambiguation score: every indicator checked, positive
// or negative, counts toward confidence.
func (s StateSignature) Specificity() int {
	return len(s.Indicators) + len(s.NegativeIndicators)
}

func (s StateSignature) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Observation is a live snapshot handed in by the browser-control layer.
type Observation struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Body     string   `json:"body,omitempty"`
	Features []string `json:"features,omitempty"`
}

// Has reports whether an indicator is present in the observation, either as a
// detected feature or as a fragment of the raw body.
func (o Observation) Has(indicator string) bool {
	indicator = strings.TrimSpace(indicator)
	if indicator == "" {
		return false
	}
	for _, f := range o.Features {
		if strings.EqualFold(strings.TrimSpace(f), indicator) {
			return true
		}
	}
	return o.Body != "" && strings.Contains(o.Body, indicator)
}
