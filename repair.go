package toolflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnrepairableJSON is returned by RepairJSON when the text is still not
// valid JSON after the generator was asked to fix it.
var ErrUnrepairableJSON = errors.New("toolflow: JSON could not be repaired")

const repairPrompt = `Your previous response was supposed to be valid JSON, but it contained syntax errors.
Please fix it to valid JSON. Keep the same data, just fix any JSON structure issues.

Previous text:
%s

Return ONLY valid JSON, no extra commentary.`

// CleanJSON removes the usual model noise around JSON: a markdown code
// fence and trailing commas before a closing bracket or brace. Commas inside
// strings are left alone.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	}
	return dropTrailingCommas(text)
}

func dropTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
		case ch == '"':
			inString = true
		case ch == ',':
			rest := strings.TrimLeft(text[i+1:], " \t\r\n")
			if rest != "" && (rest[0] == '}' || rest[0] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// DecodeArguments decodes the arguments a generator supplied for an
// invocation. Empty input and JSON null decode to an empty map; CleanJSON
// is applied before giving up.
func DecodeArguments(raw []byte) (map[string]any, error) {
	args := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		args = map[string]any{}
		if err2 := json.Unmarshal([]byte(CleanJSON(string(raw))), &args); err2 != nil {
			return nil, err
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// RepairJSON decodes text into v. Text that is not valid JSON even after
// CleanJSON is sent back to gen once with a request to fix it.
func RepairJSON(ctx context.Context, gen Generator, text string, v any) error {
	cleaned := CleanJSON(text)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	fixed, err := gen.Generate(ctx, Prompt{User: fmt.Sprintf(repairPrompt, cleaned)})
	if err != nil {
		return fmt.Errorf("toolflow: repair JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(CleanJSON(fixed.Text)), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnrepairableJSON, err)
	}
	return nil
}

// ValidParameters reports whether raw is usable as a capability parameter
// schema: empty, or a JSON object.
func ValidParameters(raw json.RawMessage) bool {
	if len(bytes.TrimSpace(raw)) == 0 {
		return true
	}
	var schema map[string]any
	return json.Unmarshal(raw, &schema) == nil && schema != nil
}
