// Package agent provides the Coordinator, which runs conversational turns
// over a set of capabilities.
//
// A turn asks the generator for a reply. Every capability invocation in the
// reply has its arguments completed by the resolver (memory, retrieval, peer
// capabilities, then the user) and is run with retries. Results and failures
// are appended to the prompt as notes and the generator is asked again,
// until it answers without invoking anything.
//
// # Basic Usage
//
//	type SendArgs struct {
//	    Channel string `json:"channel" desc:"Channel ID" required:"true"`
//	    Text    string `json:"text" required:"true"`
//	}
//
//	send := capability.MustFunc("sendMessage", "Send a Slack message",
//	    func(ctx context.Context, args SendArgs) (map[string]any, error) {
//	        return slack.Post(ctx, args.Channel, args.Text)
//	    },
//	    capability.WithCompanion(companion.Slack()),
//	)
//
//	a, err := agent.New(gen, agent.FromList(send),
//	    agent.WithMemory(memory.New()),
//	    agent.WithAsker(input.NewConsole(os.Stdin, os.Stdout)),
//	)
//	answer, err := a.SendMessage(ctx, "Tell the team the build is green")
//
// # Events
//
// Every turn emits events to the configured Sink. SendMessageStream returns
// the events of a single turn on a channel instead:
//
//	for ev := range a.SendMessageStream(ctx, "hello") {
//	    switch ev.Type {
//	    case event.CapabilityInvoked:
//	        fmt.Println("running", ev.Capability)
//	    case event.TurnEnd:
//	        fmt.Println(ev.Message)
//	    }
//	}
//
// # Errors
//
// An invocation of an unknown capability returns *UnknownCapabilityError and
// a resolution failure returns *ResolutionError; both end the turn without
// updating memory. A capability that still fails after retries produces a
// *CapabilityExecutionError event and a note for the generator. A turn that
// keeps invoking capabilities past MaxSteps returns ErrMaxSteps.
package agent
