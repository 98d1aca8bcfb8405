package agentrunner

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParsedOutput is the result of running the structured-output parser
// chain against a model's raw text, per spec.md §4.5 step 3.
type ParsedOutput struct {
	Fields       map[string]any
	StructuredOK bool
}

var fencedBlockRe = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// ParseStructuredOutput runs the five-stage parser policy from
// spec.md §4.5 step 3: (a) strict JSON, (b) fenced-code-block JSON,
// (c) first-balanced-braces extraction, (d) named-key scan, (e) a
// chat_message fallback with structured_ok=false.
//
// Grounded on _examples/original_source/.../runtime/langgraph/parsers.py
// (extract_balanced_object, extract_mixed_json_dict,
// extract_object_by_named_key), translated from Python string scanning
// into the equivalent Go byte-scanning helpers below.
func ParseStructuredOutput(raw string) ParsedOutput {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ParsedOutput{Fields: map[string]any{"chat_message": ""}, StructuredOK: false}
	}

	if obj, ok := tryStrictJSON(text); ok {
		return ParsedOutput{Fields: obj, StructuredOK: true}
	}

	for _, block := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		if obj, ok := tryStrictJSON(strings.TrimSpace(block[1])); ok {
			return ParsedOutput{Fields: obj, StructuredOK: true}
		}
		if obj, ok := largestBalancedObject(block[1]); ok {
			return ParsedOutput{Fields: obj, StructuredOK: true}
		}
	}

	if obj, ok := largestBalancedObject(text); ok {
		return ParsedOutput{Fields: obj, StructuredOK: true}
	}

	if fields := keyScan(text); len(fields) > 0 {
		return ParsedOutput{Fields: fields, StructuredOK: true}
	}

	return ParsedOutput{Fields: map[string]any{"chat_message": text}, StructuredOK: false}
}

func tryStrictJSON(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// extractBalancedObject returns the substring of text starting at
// startIndex (which must be '{') through its matching closing brace,
// respecting string literals and escapes, grounded on parsers.py's
// extract_balanced_object.
func extractBalancedObject(text string, startIndex int) (string, bool) {
	if startIndex < 0 || startIndex >= len(text) || text[startIndex] != '{' {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := startIndex; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[startIndex : i+1], true
			}
		}
	}
	return "", false
}

// largestBalancedObject scans text for every balanced {...} object and
// returns the longest one that parses as JSON, grounded on parsers.py's
// extract_largest_json_dict.
func largestBalancedObject(text string) (map[string]any, bool) {
	var best map[string]any
	bestLen := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		candidate, ok := extractBalancedObject(text, i)
		if !ok {
			continue
		}
		if obj, ok := tryStrictJSON(candidate); ok && len(candidate) > bestLen {
			best = obj
			bestLen = len(candidate)
		}
	}
	return best, best != nil
}

// keyScanFields are the fields the runner cares about extracting by
// name when the model produces near-JSON that fails to parse wholesale.
var keyScanFields = []string{
	"chat_message", "analysis", "conclusion", "confidence", "root_cause", "summary",
}

// keyScan extracts named string fields by scanning for "<key>": "<value>"
// pairs with escape handling, per spec.md §4.5 step 3(d), grounded on
// parsers.py's regex-based extract_confidence_hint approach generalized
// to arbitrary string-valued keys.
func keyScan(text string) map[string]any {
	out := make(map[string]any)
	for _, key := range keyScanFields {
		re := regexp.MustCompile(`"` + key + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
		if m := re.FindStringSubmatch(text); m != nil {
			out[key] = unescapeJSONString(m[1])
		}
	}
	if m := regexp.MustCompile(`"confidence"\s*:\s*(-?\d+(?:\.\d+)?)`).FindStringSubmatch(text); m != nil {
		var f float64
		if err := json.Unmarshal([]byte(m[1]), &f); err == nil {
			out["confidence"] = f
		}
	}
	return out
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
