// Package toolflow provides the core types for a tool-calling conversational
// agent: capabilities the model may invoke, the invocation requests a
// generator produces, and the collaborator interfaces the agent consumes.
//
// The library is split into small packages that build on these types:
//
//   - [github.com/spetersoncode/toolflow/capability]: the capability catalog
//   - [github.com/spetersoncode/toolflow/validate]: JSON Schema argument validation
//   - [github.com/spetersoncode/toolflow/resolver]: missing-argument resolution
//   - [github.com/spetersoncode/toolflow/retry]: bounded exponential backoff
//   - [github.com/spetersoncode/toolflow/agent]: the conversation coordinator
//
// # Capabilities
//
// A capability is a named, schema-described function:
//
//	send := toolflow.Capability{
//	    Name:        "sendMessage",
//	    Description: "Send a message to a channel",
//	    Parameters: json.RawMessage(`{
//	        "type": "object",
//	        "properties": {
//	            "channel": {"type": "string"},
//	            "text": {"type": "string"}
//	        },
//	        "required": ["channel", "text"]
//	    }`),
//	    Companion: companion.Slack(),
//	    Invoke: func(ctx context.Context, args map[string]any) (any, error) {
//	        return slack.Post(ctx, args["channel"].(string), args["text"].(string))
//	    },
//	}
//
// # Running a Turn
//
// The coordinator drives generation, argument resolution and execution:
//
//	gen, err := client.New(ctx, client.Config{Provider: toolflow.ProviderOpenAI, APIKey: key})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	a, err := agent.New(gen, agent.FromList(send),
//	    agent.WithMemory(memory.New()),
//	    agent.WithAsker(input.NewConsole(os.Stdin, os.Stdout)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := a.SendMessage(ctx, "post hi to the team channel")
//
// # Error Handling
//
// Provider adapters return categorized errors. Use [IsTransient],
// [IsPermanent] and [IsUserInput] to decide how to react, or
// retry.Transient as a retry predicate.
package toolflow
