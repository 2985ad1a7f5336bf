package services

import (
	"regexp"
	"strings"
)

var (
	// a '#' marker followed by the code
	codePattern = regexp.MustCompile(`#([A-Za-z0-9_-]{3,40})`)
	// the literal TID: marker followed by the correlation token
	tokenPattern = regexp.MustCompile(`(?i)TID:([A-Za-z0-9_-]{5,20})`)
	// whole-string form used to validate operator supplied codes
	codeGrammar = regexp.MustCompile(`^[A-Za-z0-9_-]{3,40}$`)
)

// ParsedMessage is what the visitor's text yields. Empty fields mean absent.
type ParsedMessage struct {
	// Code is the first code found, upper-cased.
	Code string
	// Candidates lists every distinct code found, in order of appearance.
	Candidates []string
	Token      string
}

func ParseMessage(text string) ParsedMessage {
	var parsed ParsedMessage

	for _, m := range codePattern.FindAllStringSubmatch(text, -1) {
		code := strings.ToUpper(m[1])
		if !contains(parsed.Candidates, code) {
			parsed.Candidates = append(parsed.Candidates, code)
		}
	}
	if len(parsed.Candidates) > 0 {
		parsed.Code = parsed.Candidates[0]
	}

	if m := tokenPattern.FindStringSubmatch(text); m != nil {
		parsed.Token = m[1]
	}
	return parsed
}

func (p ParsedMessage) HasCode() bool {
	return p.Code != ""
}

// Resolve picks the candidate equal to preferred, falling back to the first code.
func (p ParsedMessage) Resolve(preferred string) string {
	preferred = strings.ToUpper(preferred)
	if preferred != "" && contains(p.Candidates, preferred) {
		return preferred
	}
	return p.Code
}

// NormalizeCode validates an operator supplied code and upper-cases it.
func NormalizeCode(raw string) (string, bool) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
	if !codeGrammar.MatchString(raw) {
		return "", false
	}
	return strings.ToUpper(raw), true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
