package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/agent"
	"github.com/spetersoncode/toolflow/input"
	"github.com/spetersoncode/toolflow/plan"
	"github.com/spetersoncode/toolflow/retrieval/qdrant"
)

type session struct {
	coord     *agent.Coordinator
	console   *input.Console
	retriever *qdrant.Retriever
	planner   *plan.Planner
	executor  *plan.Executor
	out       io.Writer
}

func (s *session) loop(ctx context.Context) error {
	fmt.Fprintf(s.out, "toolflow %s: %d capabilities loaded. Type /tools to list them, /quit to exit.\n",
		version, s.coord.Catalog().Len())

	for {
		fmt.Fprint(s.out, "\nyou> ")
		line, err := s.console.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/tools":
			s.listTools()
			continue
		case strings.HasPrefix(line, "/index "):
			s.index(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/index ")))
			continue
		case strings.HasPrefix(line, "/plan "):
			if err := s.runPlan(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/plan "))); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
			continue
		case strings.HasPrefix(line, "/forget "):
			s.forget(ctx, strings.Fields(strings.TrimPrefix(line, "/forget ")))
			continue
		}

		answer, err := s.coord.SendMessage(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(s.out, "agent> %s\n", answer)
	}
}

func (s *session) listTools() {
	for _, m := range s.coord.Catalog().Metadata() {
		piece := ""
		if m.Piece != "" {
			piece = " [" + m.Piece + "]"
		}
		fmt.Fprintf(s.out, "  %s%s: %s\n", m.Name, piece, m.Description)
	}
}

func (s *session) runPlan(ctx context.Context, task string) error {
	if s.planner == nil || s.executor == nil {
		fmt.Fprintln(s.out, "planning is not configured")
		return nil
	}
	steps, err := s.planner.Create(ctx, task)
	if err != nil {
		return err
	}
	for i, step := range steps {
		fmt.Fprintf(s.out, "  %d. %s [%s]\n", i+1, step.Name, strings.Join(step.Tools, ", "))
	}

	result, err := s.executor.Execute(ctx, steps)
	if err != nil {
		return err
	}
	for _, r := range result.Steps {
		if r.Err != nil {
			fmt.Fprintf(s.out, "agent> %s failed: %v\n", r.Step, r.Err)
			continue
		}
		fmt.Fprintf(s.out, "agent> %s: %s\n", r.Step, r.Output)
	}
	return nil
}

func (s *session) index(ctx context.Context, text string) {
	if s.retriever == nil {
		fmt.Fprintln(s.out, "retrieval is not configured (set qdrant.addr)")
		return
	}
	id := uuid.NewString()
	if err := s.retriever.Index(ctx, qdrant.Document{ID: id, Text: text}); err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "indexed %s\n", id)
}

func (s *session) forget(ctx context.Context, ids []string) {
	if s.retriever == nil {
		fmt.Fprintln(s.out, "retrieval is not configured (set qdrant.addr)")
		return
	}
	if err := s.retriever.Delete(ctx, ids...); err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "forgot %d document(s)\n", len(ids))
}

// approver confirms invocations on the console. Anything but y or yes
// rejects.
func approver(console *input.Console) agent.ApproverFunc {
	return func(ctx context.Context, inv ai.Invocation) (bool, string) {
		args, _ := json.Marshal(inv.Arguments)
		answer, err := console.Ask(ctx, "approval", ai.Capability{Name: inv.Name},
			fmt.Sprintf("Run %s with %s? [y/N]", inv.Name, args))
		if err != nil {
			return false, err.Error()
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, ""
		default:
			return false, "rejected by the user"
		}
	}
}
