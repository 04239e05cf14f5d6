package anthropic

import (
	"encoding/json"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"

	ai "github.com/spetersoncode/toolflow"
)

func convertCapabilities(caps []ai.Capability) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(caps))
	for _, c := range caps {
		var schema map[string]any
		if len(c.Parameters) > 0 {
			if err := json.Unmarshal(c.Parameters, &schema); err != nil {
				slog.Warn("anthropic: skipping capability with malformed parameters", "capability", c.Name, "error", err)
				continue
			}
		}

		var required []string
		if reqVal, ok := schema["required"].([]any); ok {
			for _, r := range reqVal {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}

		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        c.Name,
				Description: anthropic.String(c.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
					Required:   required,
				},
			},
		})
	}
	return result
}

func convertToolChoice(choice ai.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice {
	case ai.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case ai.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

// extractInvocations collects tool_use blocks. Input that does not decode
// is kept as RawArguments.
func extractInvocations(content []anthropic.ContentBlockUnion) []ai.Invocation {
	var invocations []ai.Invocation
	for _, block := range content {
		if block.Type != "tool_use" {
			continue
		}
		inv := ai.Invocation{ID: block.ID, Name: block.Name}
		args, err := ai.DecodeArguments(block.Input)
		if err != nil {
			inv.Arguments = map[string]any{}
			inv.RawArguments = string(block.Input)
		} else {
			inv.Arguments = args
		}
		invocations = append(invocations, inv)
	}
	return invocations
}
