package claude

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// errNoMatch tells Extract to try the next strategy.
var errNoMatch = errors.New("no match")

type strategy struct {
	name string
	try  func(out string) (map[string]any, error)
}

var (
	fencedJSON   = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")
	fencedPlain  = regexp.MustCompile("```\\s*([\\s\\S]*?)\\s*```")
	frameworkObj = regexp.MustCompile(`(\{[\s\S]*"Framework"[\s\S]*"Requirements"[\s\S]*\})`)
	anyObj       = regexp.MustCompile(`(\{[\s\S]*\})`)
)

// Order matters: the CLI envelope is checked before any free-text search.
var strategies = []strategy{
	{name: "envelope", try: fromEnvelope},
	{name: "direct", try: fromDirect},
	{name: "fenced", try: fromFences},
	{name: "pattern", try: fromPatterns},
	{name: "braces", try: fromBraces},
}

// textStrategies are used on a string result carried inside the envelope.
var textStrategies = []strategy{
	{name: "fenced", try: fromFences},
	{name: "pattern", try: fromPatterns},
	{name: "braces", try: fromBraces},
}

// Extract pulls the mapping object out of the tool's stdout.
func Extract(output string) (map[string]any, error) {
	if strings.TrimSpace(output) == "" {
		return nil, parsingError("Claude returned empty output")
	}
	for _, s := range strategies {
		v, err := s.try(output)
		if errors.Is(err, errNoMatch) {
			continue
		}
		return v, err
	}
	return nil, parsingError(fmt.Sprintf(
		"Could not extract valid JSON from Claude output. Output preview: %s...", preview(output, previewChars)))
}

func fromEnvelope(out string) (map[string]any, error) {
	var env map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &env); err != nil {
		return nil, errNoMatch
	}
	if env["type"] != "result" {
		return nil, errNoMatch
	}
	if isErr, _ := env["is_error"].(bool); isErr {
		return nil, executionError(fmt.Sprintf("Claude returned error: %v", env["result"]))
	}

	switch result := env["result"].(type) {
	case map[string]any:
		return result, nil
	case string:
		if v, err := parseObject(result); err == nil {
			return v, nil
		}
		for _, s := range textStrategies {
			v, err := s.try(result)
			if errors.Is(err, errNoMatch) {
				continue
			}
			return v, err
		}
		return nil, parsingError(fmt.Sprintf(
			"Could not extract valid JSON from Claude output. Output preview: %s...", preview(result, previewChars)))
	default:
		// an envelope without a usable result is never the mapping itself
		return nil, parsingError(fmt.Sprintf(
			"Could not extract valid JSON from Claude output. Output preview: %s...", preview(resultText(result), previewChars)))
	}
}

func resultText(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// fromDirect accepts stdout that is itself a mapping object.
func fromDirect(out string) (map[string]any, error) {
	obj, err := parseObject(out)
	if err != nil {
		return nil, err
	}
	_, hasFramework := obj["Framework"]
	_, hasRequirements := obj["Requirements"]
	if !hasFramework && !hasRequirements {
		return nil, errNoMatch
	}
	return obj, nil
}

func parseObject(s string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &v); err != nil {
		return nil, errNoMatch
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNoMatch
	}
	return obj, nil
}

func fromFences(s string) (map[string]any, error) {
	for _, re := range []*regexp.Regexp{fencedJSON, fencedPlain} {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			body := strings.TrimSpace(m[1])
			if !strings.HasPrefix(body, "{") {
				continue
			}
			if v, err := parseObject(body); err == nil {
				return v, nil
			}
		}
	}
	return nil, errNoMatch
}

func fromPatterns(s string) (map[string]any, error) {
	for _, re := range []*regexp.Regexp{frameworkObj, anyObj} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if v, err := parseObject(m[1]); err == nil {
			return v, nil
		}
	}
	return nil, errNoMatch
}

// fromBraces scans for the first balanced {...} span that parses as an object.
func fromBraces(s string) (map[string]any, error) {
	depth, start := 0, -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if v, err := parseObject(s[start : i+1]); err == nil {
					return v, nil
				}
				start = -1
			}
		}
	}
	return nil, errNoMatch
}
