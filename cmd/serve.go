package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/agentic-research/resonance/internal/graph"
	"github.com/agentic-research/resonance/internal/lattice"
	"github.com/agentic-research/resonance/internal/rules"
	"github.com/agentic-research/resonance/internal/signature"
)

var metricsAddr string

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve index queries as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(cmd.Context())
		if err != nil {
			return err
		}
		provider, err := newProvider(signature.DefaultMaxN)
		if err != nil {
			return err
		}

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server", "err", err)
				}
			}()
			defer func() { _ = srv.Close() }()
			slog.Info("serving metrics", "addr", metricsAddr)
		}

		t := newTools(graph.NewHotSwapIndex(idx), engine, provider)
		slog.Info("serving MCP over stdio", "nodes", idx.Len(), "db", dbPath)
		return server.ServeStdio(t.server())
	},
}

// tools holds the state shared by the MCP tool handlers.
type tools struct {
	index    *graph.HotSwapIndex
	engine   *rules.Engine
	provider signature.Provider
	// reload rebuilds the index from its source; nil disables the tool.
	reload func(ctx context.Context) (graph.Querier, error)
}

func newTools(idx *graph.HotSwapIndex, e *rules.Engine, p signature.Provider) *tools {
	return &tools{
		index:    idx,
		engine:   e,
		provider: p,
		reload: func(ctx context.Context) (graph.Querier, error) {
			return loadIndex(ctx)
		},
	}
}

func (t *tools) server() *server.MCPServer {
	s := server.NewMCPServer("resonance", "0.1.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(mcp.NewTool("neighbors",
		mcp.WithDescription("Most similar indexed nodes to n, by descending similarity"),
		mcp.WithNumber("n", mcp.Required(), mcp.Description("Node n (signature of n!)")),
		mcp.WithNumber("k", mcp.Description("Maximum results, 0 for all")),
		mcp.WithNumber("threshold", mcp.Description("Exclusive similarity threshold")),
	), t.neighbors)
	s.AddTool(mcp.NewTool("traverse",
		mcp.WithDescription("Depth-first self-similar traversal from n"),
		mcp.WithNumber("n", mcp.Required(), mcp.Description("Start node")),
		mcp.WithNumber("depth", mcp.Description("Depth limit")),
		mcp.WithNumber("threshold", mcp.Description("Exclusive similarity threshold")),
		mcp.WithNumber("fanout", mcp.Description("Neighbors expanded per node, 0 for all")),
	), t.traverse)
	s.AddTool(mcp.NewTool("score",
		mcp.WithDescription("Similarity score and resonance law of a! and b!"),
		mcp.WithNumber("a", mcp.Required()),
		mcp.WithNumber("b", mcp.Required()),
	), t.score)
	s.AddTool(mcp.NewTool("prefix_search",
		mcp.WithDescription("Nodes whose position key starts with the dotted prefix, e.g. 3.1"),
		mcp.WithString("prefix", mcp.Required()),
	), t.prefixSearch)
	s.AddTool(mcp.NewTool("families",
		mcp.WithDescription("Families of nodes sharing a prime support"),
	), t.families)
	s.AddTool(mcp.NewTool("reload",
		mcp.WithDescription("Reload the index from the database"),
	), t.reloadIndex)
	return s
}

type neighborResult struct {
	N          uint64  `json:"n"`
	Similarity float64 `json:"similarity"`
	Law        string  `json:"law"`
}

func (t *tools) neighbors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := req.RequireInt("n")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nbs, err := t.index.Neighbors(ctx, uint64(n), req.GetInt("k", 5), req.GetFloat("threshold", 0.5))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("neighbors", err), nil
	}
	scorer := t.engine.Scorer()
	out := make([]neighborResult, 0, len(nbs))
	for _, nb := range nbs {
		r, err := scorer.Classify(nb.Similarity)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("classify", err), nil
		}
		out = append(out, neighborResult{N: nb.Node.N, Similarity: nb.Similarity, Law: r.Law.String()})
	}
	return mcp.NewToolResultJSON(out)
}

type traverseResult struct {
	Visited  []uint64 `json:"visited"`
	MaxDepth int      `json:"max_depth"`
	Bound    string   `json:"bound"`
}

func (t *tools) traverse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := req.RequireInt("n")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := graph.TraverseOptions{
		DepthLimit: req.GetInt("depth", 3),
		Threshold:  req.GetFloat("threshold", 0.6),
		FanOut:     req.GetInt("fanout", 0),
		MaxVisits:  10000,
	}
	res, err := t.index.Traverse(ctx, uint64(n), opts, nil)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("traverse", err), nil
	}
	return mcp.NewToolResultJSON(traverseResult{Visited: res.Visited, MaxDepth: res.MaxDepth, Bound: res.Bound.String()})
}

type scoreResult struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
	Law   string  `json:"law"`
}

func (t *tools) score(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := req.RequireInt("a")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := req.RequireInt("b")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if a < 0 || b < 0 {
		return mcp.NewToolResultError("a and b must be non-negative"), nil
	}
	sa, err := t.provider.Signature(uint64(a))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("signature", err), nil
	}
	sb, err := t.provider.Signature(uint64(b))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("signature", err), nil
	}
	r, err := t.engine.Scorer().Score(sa, sb)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("score", err), nil
	}
	return mcp.NewToolResultJSON(scoreResult{A: sa.String(), B: sb.String(), Score: r.Score, Law: r.Law.String()})
}

func (t *tools) prefixSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix, err := req.RequireString("prefix")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := graph.ParsePositionKey(prefix)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("prefix", err), nil
	}
	nodes := t.index.PrefixSearch(key)
	out := make([]uint64, len(nodes))
	for i, n := range nodes {
		out[i] = n.N
	}
	return mcp.NewToolResultJSON(out)
}

type familyResult struct {
	Primes []uint32 `json:"primes"`
	Nodes  []uint64 `json:"nodes"`
}

func (t *tools) families(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fams := lattice.Families(lattice.FromIndex(t.index))
	out := make([]familyResult, len(fams))
	for i, f := range fams {
		out[i] = familyResult{Primes: f.Primes, Nodes: f.Nodes}
	}
	return mcp.NewToolResultJSON(out)
}

func (t *tools) reloadIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.reload == nil {
		return mcp.NewToolResultError("reload not available"), nil
	}
	next, err := t.reload(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("reload", err), nil
	}
	prev := t.index.Swap(next)
	return mcp.NewToolResultText(fmt.Sprintf("reloaded: %d nodes (was %d)", next.Len(), prev.Len())), nil
}
