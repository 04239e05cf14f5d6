package openai

import (
	"encoding/json"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	ai "github.com/spetersoncode/toolflow"
)

func convertCapabilities(caps []ai.Capability) []openai.ChatCompletionToolParam {
	if len(caps) == 0 {
		return nil
	}
	result := make([]openai.ChatCompletionToolParam, 0, len(caps))
	for _, c := range caps {
		var params shared.FunctionParameters
		if len(c.Parameters) > 0 {
			if err := json.Unmarshal(c.Parameters, &params); err != nil {
				slog.Warn("openai: skipping capability with malformed parameters", "capability", c.Name, "error", err)
				continue
			}
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        c.Name,
				Description: openai.String(c.Description),
				Parameters:  params,
			},
		})
	}
	return result
}

func convertToolChoice(choice ai.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice {
	case ai.ToolChoiceNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
	case ai.ToolChoiceRequired:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
}

// extractInvocations collects tool calls. Arguments that do not decode are
// kept as RawArguments for the coordinator to repair.
func extractInvocations(msg openai.ChatCompletionMessage) []ai.Invocation {
	if len(msg.ToolCalls) == 0 {
		return nil
	}
	result := make([]ai.Invocation, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = ai.GenerateInvocationID()
		}
		inv := ai.Invocation{ID: id, Name: tc.Function.Name}
		args, err := ai.DecodeArguments([]byte(tc.Function.Arguments))
		if err != nil {
			inv.Arguments = map[string]any{}
			inv.RawArguments = tc.Function.Arguments
		} else {
			inv.Arguments = args
		}
		result[i] = inv
	}
	return result
}
