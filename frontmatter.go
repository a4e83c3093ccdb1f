package main

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// hasDraftFrontmatter reports whether content opens with a frontmatter
// block whose "draft" key is truthy. Only the directory listing consults
// this (for the draft badge); serving decisions never depend on it.
func hasDraftFrontmatter(content string) bool {
	fields := parseFrontmatter(content)
	if fields == nil {
		return false
	}
	draft, ok := parseBoolValue(fields["draft"])
	return ok && draft
}

// parseFrontmatter decodes the leading YAML or JSON frontmatter block into
// a generic map. Returns nil when there is no block or it does not decode
// to a mapping.
func parseFrontmatter(content string) map[string]any {
	if block, ok := extractYAMLFrontmatter(content); ok {
		var fields map[string]any
		if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
			return nil
		}
		return fields
	}

	if block, ok := extractJSONFrontmatter(content); ok {
		var fields map[string]any
		if err := json.Unmarshal([]byte(block), &fields); err != nil {
			return nil
		}
		return fields
	}

	return nil
}

// extractYAMLFrontmatter returns the block between an opening "---" line
// at the very start of the document and the next line that trims to "---".
func extractYAMLFrontmatter(content string) (string, bool) {
	var start int
	switch {
	case strings.HasPrefix(content, "---\n"):
		start = 4
	case strings.HasPrefix(content, "---\r\n"):
		start = 5
	default:
		return "", false
	}

	rest := content[start:]
	offset := start
	for _, line := range strings.Split(rest, "\n") {
		if strings.TrimSpace(strings.TrimSuffix(line, "\r")) == "---" {
			return content[start:offset], true
		}
		offset += len(line) + 1
		if offset > len(content) {
			offset = len(content)
		}
	}

	return "", false
}

// extractJSONFrontmatter returns the balanced JSON object a document opens
// with. The scan is string-and-escape aware so braces inside values do not
// end the block. After the closing brace only a newline or end of input is
// accepted; trailing text on the same line means no frontmatter.
func extractJSONFrontmatter(content string) (string, bool) {
	if !strings.HasPrefix(content, "{") {
		return "", false
	}

	depth := 0
	inString := false
	escapeNext := false

	for idx, ch := range content {
		if inString {
			switch {
			case escapeNext:
				escapeNext = false
			case ch == '\\':
				escapeNext = true
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
				block := content[:idx+1]
				rest := content[idx+1:]
				if rest == "" || strings.HasPrefix(rest, "\n") || strings.HasPrefix(rest, "\r\n") {
					return block, true
				}
				return "", false
			}
		}
	}

	return "", false
}

// parseBoolValue coerces frontmatter values to a boolean: real booleans,
// the strings true/yes/on/1 and false/no/off/0 (trimmed, any case), and
// the integers 0 and 1. Anything else reports no value.
func parseBoolValue(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			return true, true
		case "false", "no", "off", "0":
			return false, true
		}
		return false, false
	case int:
		return intToBool(int64(v))
	case int64:
		return intToBool(v)
	case uint64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
		return false, false
	case float64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
		return false, false
	default:
		return false, false
	}
}

func intToBool(v int64) (bool, bool) {
	if v == 0 || v == 1 {
		return v == 1, true
	}
	return false, false
}
