// Command toolflow is an interactive agent over a demo Slack workspace.
//
// Settings come from an optional YAML file, TOOLFLOW_ environment variables
// and a .env file in the working directory. Missing capability arguments
// are asked for on the terminal.
//
// Usage:
//
//	go run ./cmd/toolflow -config toolflow.yaml
//
// Commands inside the session:
//
//	/tools          list the available capabilities
//	/plan <task>    split a task into steps and run them in order
//	/index <text>   add a document to the retrieval collection
//	/forget <id>... remove indexed documents
//	/quit           exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/agent"
	"github.com/spetersoncode/toolflow/capability"
	"github.com/spetersoncode/toolflow/client"
	"github.com/spetersoncode/toolflow/config"
	"github.com/spetersoncode/toolflow/event"
	"github.com/spetersoncode/toolflow/input"
	"github.com/spetersoncode/toolflow/internal/demo"
	"github.com/spetersoncode/toolflow/mcp"
	"github.com/spetersoncode/toolflow/memory"
	"github.com/spetersoncode/toolflow/memory/sqlite"
	"github.com/spetersoncode/toolflow/plan"
	"github.com/spetersoncode/toolflow/retrieval/qdrant"
	"github.com/spetersoncode/toolflow/telemetry"
)

const version = "0.1.0"

const description = `You are a helpful assistant operating a Slack workspace.
Use the available capabilities to act on the user's behalf and answer briefly.`

func main() {
	godotenv.Load() // Load .env file if present

	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "toolflow:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.Init(ctx, "toolflow", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	llm := client.New(cfg.Client(), cfg.ClientOptions()...)

	catalog := capability.NewCatalog(demo.NewWorkspace().Capabilities(), capability.WithLogger(logger))
	remotes := connectRemotes(ctx, cfg.MCP.Servers, catalog, logger)
	defer func() {
		for _, r := range remotes {
			r.Close()
		}
	}()

	var (
		semantic  memory.Semantic
		retriever *qdrant.Retriever
	)
	if cfg.RetrievalEnabled() {
		retriever, err = qdrant.Dial(cfg.Qdrant.Addr, llm,
			qdrant.WithCollection(cfg.Qdrant.Collection),
			qdrant.WithTopK(cfg.Qdrant.TopK),
			qdrant.WithScoreThreshold(cfg.Qdrant.ScoreThreshold),
		)
		if err != nil {
			return err
		}
		defer retriever.Close()

		if err := retriever.EnsureCollection(ctx); err != nil {
			return err
		}
		semantic = retriever
	}

	mem, closeMemory, err := openMemory(ctx, cfg, semantic)
	if err != nil {
		return err
	}
	defer closeMemory()

	metrics, err := telemetry.NewMetricsSink(nil)
	if err != nil {
		return err
	}

	desc := description
	if cfg.Agent.Description != "" {
		desc = cfg.Agent.Description
	}

	sink := event.Multi(telemetry.NewLogSink(logger), metrics)
	console := input.NewConsole(in, out)
	opts := []agent.Option{
		agent.WithMemory(mem),
		agent.WithAsker(console),
		agent.WithDescription(desc),
		agent.WithRetry(cfg.Retry(), cfg.RetryOptions()...),
		agent.WithMaxCycles(cfg.Agent.MaxCycles),
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithTimeout(cfg.Agent.Timeout),
		agent.WithInvokeTimeout(cfg.Agent.InvokeTimeout),
		agent.WithSink(event.Multi(telemetry.NewLogSink(logger), metrics)),
		agent.WithLogger(logger),
	}
	if retriever != nil {
		opts = append(opts, agent.WithRetriever(retriever))
	}
	if len(cfg.Agent.ApprovalRequired) > 0 {
		opts = append(opts,
			agent.WithApprover(approver(console)),
			agent.WithApprovalRequired(cfg.Agent.ApprovalRequired...),
		)
	}

	coord, err := agent.New(llm, agent.FromCatalog(catalog), opts...)
	if err != nil {
		return err
	}

	return (&session{
		coord:     coord,
		console:   console,
		retriever: retriever,
		planner: plan.NewPlanner(llm, catalog,
			plan.WithPlannerRetry(cfg.Retry(), cfg.RetryOptions()...),
			plan.WithPlannerSink(sink),
			plan.WithPlannerLogger(logger),
		),
		executor: plan.NewExecutor(llm, catalog,
			plan.WithAgentOptions(opts...),
			plan.WithStepTimeout(cfg.Agent.Timeout),
			plan.WithSink(sink),
			plan.WithLogger(logger),
		),
		out: out,
	}).loop(ctx)
}

func openMemory(ctx context.Context, cfg *config.Config, semantic memory.Semantic) (ai.Memory, func() error, error) {
	if cfg.Memory.SQLitePath == "" {
		mem := memory.New(
			memory.WithWindow(cfg.Memory.Window),
			memory.WithSemantic(semantic),
		)
		return mem, func() error { return nil }, nil
	}

	store, err := sqlite.Open(ctx, cfg.Memory.SQLitePath,
		sqlite.WithWindow(cfg.Memory.Window),
		sqlite.WithSemantic(semantic),
	)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// connectRemotes loads the tools of every configured MCP server into
// catalog. Servers that fail to connect are skipped.
func connectRemotes(ctx context.Context, servers map[string]config.MCPServer, catalog *capability.Catalog, logger *slog.Logger) []*mcp.Remote {
	var remotes []*mcp.Remote
	for name, s := range servers {
		var (
			r   *mcp.Remote
			err error
		)
		if s.Command != "" {
			r, err = mcp.Connect(ctx, name, s.Command, s.Env, s.Args...)
		} else {
			r, err = mcp.ConnectSSE(ctx, name, s.URL)
		}
		if err != nil {
			logger.Warn("skipping MCP server", "server", name, "error", err)
			continue
		}
		catalog.Register(r.Capabilities()...)
		remotes = append(remotes, r)
		logger.Info("loaded MCP server", "server", name, "capabilities", len(r.Capabilities()))
	}
	return remotes
}
