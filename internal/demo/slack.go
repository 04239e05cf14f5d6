// Package demo provides an in-memory Slack workspace whose actions are
// exposed as capabilities. The commands use it so the agent can be tried
// without real integration credentials.
package demo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/capability"
	"github.com/spetersoncode/toolflow/companion"
)

// Piece is the integration name of every demo capability.
const Piece = "slack"

// Channel is a workspace channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a posted message.
type Message struct {
	Channel   string   `json:"channel"`
	TS        string   `json:"ts"`
	Text      string   `json:"text"`
	Thread    string   `json:"thread,omitempty"`
	Reactions []string `json:"reactions,omitempty"`
}

// Workspace is an in-memory Slack workspace. It is safe for concurrent use.
type Workspace struct {
	mu       sync.Mutex
	channels []Channel
	messages []Message
	now      func() time.Time
	seq      int
}

// NewWorkspace creates a workspace with a few channels.
func NewWorkspace() *Workspace {
	return &Workspace{
		channels: []Channel{
			{ID: "C01GENERAL", Name: "general"},
			{ID: "C02RANDOM", Name: "random"},
			{ID: "C03RELEASES", Name: "releases"},
		},
		now: time.Now,
	}
}

// Messages returns the messages posted to channel, oldest first.
func (w *Workspace) Messages(channel string) []Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Message
	for _, m := range w.messages {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

func (w *Workspace) channel(id string) (Channel, error) {
	for _, c := range w.channels {
		if strings.EqualFold(c.ID, id) {
			return c, nil
		}
	}
	return Channel{}, fmt.Errorf("channel_not_found: %s", id)
}

type SendMessageArgs struct {
	Channel string `json:"channel" desc:"Slack channel ID" required:"true"`
	Text    string `json:"text" desc:"Message text" required:"true"`
	Thread  string `json:"thread,omitempty" desc:"Timestamp of the parent message to reply in a thread"`
}

type SendMessageResult struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// SendMessage posts a message.
func (w *Workspace) SendMessage(ctx context.Context, args SendMessageArgs) (SendMessageResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch, err := w.channel(args.Channel)
	if err != nil {
		return SendMessageResult{}, err
	}

	w.seq++
	ts := fmt.Sprintf("%d.%06d", w.now().Unix(), w.seq)
	w.messages = append(w.messages, Message{Channel: ch.ID, TS: ts, Text: args.Text, Thread: args.Thread})
	return SendMessageResult{Channel: ch.ID, TS: ts}, nil
}

type FindChannelArgs struct {
	Name string `json:"name" desc:"Channel name without the leading #" required:"true"`
}

type FindChannelResult struct {
	Channel string `json:"channel"`
	Name    string `json:"name"`
}

// FindChannel looks a channel up by name.
func (w *Workspace) FindChannel(ctx context.Context, args FindChannelArgs) (FindChannelResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(args.Name)), "#")
	for _, c := range w.channels {
		if c.Name == name {
			return FindChannelResult{Channel: c.ID, Name: c.Name}, nil
		}
	}
	return FindChannelResult{}, fmt.Errorf("channel_not_found: %s", args.Name)
}

type ListChannelsArgs struct{}

// ListChannels returns every channel.
func (w *Workspace) ListChannels(ctx context.Context, _ ListChannelsArgs) ([]Channel, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.channels), nil
}

type AddReactionArgs struct {
	Channel string `json:"channel" desc:"Slack channel ID" required:"true"`
	TS      string `json:"ts" desc:"Timestamp of the message" required:"true"`
	Emoji   string `json:"emoji" desc:"Emoji name without colons" required:"true"`
}

type AddReactionResult struct {
	OK bool `json:"ok"`
}

// AddReaction adds an emoji reaction to a message.
func (w *Workspace) AddReaction(ctx context.Context, args AddReactionArgs) (AddReactionResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch, err := w.channel(args.Channel)
	if err != nil {
		return AddReactionResult{}, err
	}
	for i := range w.messages {
		m := &w.messages[i]
		if m.Channel == ch.ID && m.TS == args.TS {
			m.Reactions = append(m.Reactions, strings.Trim(args.Emoji, ":"))
			return AddReactionResult{OK: true}, nil
		}
	}
	return AddReactionResult{}, fmt.Errorf("message_not_found: %s", args.TS)
}

// Capabilities returns the workspace actions as capabilities. FindChannel
// declares "channel" as an output, so the resolver can use it to fill a
// missing channel from a name. SendMessage declares "ts".
func (w *Workspace) Capabilities() []ai.Capability {
	opts := []capability.FuncOption{
		capability.WithPiece(Piece),
		capability.WithCompanion(companion.Slack()),
	}
	return []ai.Capability{
		capability.MustFunc(capability.NormalizeName("", "send_message"),
			"Post a message to a Slack channel", w.SendMessage,
			append(opts, capability.WithOutputs("ts"))...),
		capability.MustFunc(capability.NormalizeName("", "find_channel"),
			"Find a Slack channel ID by name", w.FindChannel,
			append(opts, capability.WithOutputs("channel"))...),
		capability.MustFunc(capability.NormalizeName("", "list_channels"),
			"List the channels of the Slack workspace", w.ListChannels, opts...),
		capability.MustFunc(capability.NormalizeName("", "add_reaction"),
			"Add an emoji reaction to a Slack message", w.AddReaction, opts...),
	}
}
