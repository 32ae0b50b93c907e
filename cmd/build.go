package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/resonance/internal/graph"
	"github.com/agentic-research/resonance/internal/signature"
	"github.com/agentic-research/resonance/internal/store"
)

var (
	buildFrom      uint64
	buildTo        uint64
	buildMaxN      uint64
	buildThreshold float64
	buildEdgesK    int
)

func init() {
	buildCmd.Flags().Uint64Var(&buildFrom, "from", 1, "First n to index")
	buildCmd.Flags().Uint64Var(&buildTo, "to", 200, "Last n to index")
	buildCmd.Flags().Uint64Var(&buildMaxN, "max-n", signature.DefaultMaxN, "Largest n the signature provider accepts")
	buildCmd.Flags().Float64VarP(&buildThreshold, "threshold", "t", 0.5, "Similarity threshold for persisted edges")
	buildCmd.Flags().IntVarP(&buildEdgesK, "k", "k", 8, "Persisted edges per node (0 = all)")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the index for a range of n and persist it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		provider, err := newProvider(buildMaxN)
		if err != nil {
			return err
		}

		start := time.Now()
		idx := graph.NewIndex(graph.WithLogger(slog.Default()))
		if err := idx.InsertRange(ctx, provider, buildFrom, buildTo); err != nil {
			return fmt.Errorf("build index: %w", err)
		}
		edges, err := idx.Edges(ctx, buildThreshold, buildEdgesK)
		if err != nil {
			return fmt.Errorf("compute edges: %w", err)
		}

		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		if err := s.Save(ctx, idx, edges, engine.Scorer()); err != nil {
			return fmt.Errorf("save index: %w", err)
		}

		fmt.Fprintf(out, "Built %d nodes and %d edges into %s in %v.\n", idx.Len(), len(edges), dbPath, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func newProvider(maxN uint64) (signature.Provider, error) {
	p, err := signature.NewCached(signature.NewLegendre(maxN), 4096)
	if err != nil {
		return nil, err
	}
	return p, nil
}
