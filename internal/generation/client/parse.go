package client

import (
	"encoding/json"
	"strings"

	generationdomain "github.com/flowforge/flowforge/internal/generation/domain"
)

// ParseWorkflowDocument applies the output parse policy: decode the whole
// body first, then fall back to the first balanced JSON object inside it.
// There is no third attempt; anything else is unparsable.
func ParseWorkflowDocument(content string) (*generationdomain.WorkflowDocument, []byte, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, nil, generationdomain.ErrUnparsableOutput
	}

	if doc, err := decodeDocument([]byte(trimmed)); err == nil {
		if err := doc.Validate(); err != nil {
			return nil, nil, err
		}
		return doc, []byte(trimmed), nil
	}

	candidate := extractBalancedJSON(trimmed)
	if candidate == "" {
		return nil, nil, generationdomain.ErrUnparsableOutput
	}
	doc, err := decodeDocument([]byte(candidate))
	if err != nil {
		return nil, nil, generationdomain.ErrUnparsableOutput
	}
	if err := doc.Validate(); err != nil {
		return nil, nil, err
	}
	return doc, []byte(candidate), nil
}

func decodeDocument(raw []byte) (*generationdomain.WorkflowDocument, error) {
	var doc generationdomain.WorkflowDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// extractBalancedJSON returns the first top level JSON object in text,
// tracking string and escape state so braces inside values do not count.
func extractBalancedJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
