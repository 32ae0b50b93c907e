package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/resonance/internal/graph"
	"github.com/agentic-research/resonance/internal/lattice"
	"github.com/agentic-research/resonance/internal/store"
)

var (
	queryK         int
	queryThreshold float64
	traverseDepth  int
	traverseThresh float64
	traverseFanOut int
	traverseVisits int
	scoreMaxN      uint64
)

func init() {
	neighborsCmd.Flags().IntVarP(&queryK, "k", "k", 5, "Maximum neighbors (0 = all)")
	neighborsCmd.Flags().Float64VarP(&queryThreshold, "threshold", "t", 0.5, "Similarity threshold (exclusive)")

	traverseCmd.Flags().IntVar(&traverseDepth, "depth", 3, "Depth limit")
	traverseCmd.Flags().Float64VarP(&traverseThresh, "threshold", "t", 0.6, "Similarity threshold (exclusive)")
	traverseCmd.Flags().IntVar(&traverseFanOut, "fanout", 0, "Neighbors expanded per node (0 = all)")
	traverseCmd.Flags().IntVar(&traverseVisits, "max-visits", 0, "Maximum visited nodes (0 = unbounded)")

	scoreCmd.Flags().Uint64Var(&scoreMaxN, "max-n", 1<<16, "Largest n the signature provider accepts")

	rootCmd.AddCommand(neighborsCmd, traverseCmd, scoreCmd, familiesCmd)
}

// loadIndex opens the database and rebuilds its index.
func loadIndex(ctx context.Context) (*graph.Index, error) {
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	idx, err := s.Load(ctx, graph.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", dbPath, err)
	}
	return idx, nil
}

func parseN(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid n %q: %w", s, err)
	}
	return n, nil
}

var neighborsCmd = &cobra.Command{
	Use:   "neighbors N",
	Short: "List the most similar indexed nodes to N",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := parseN(args[0])
		if err != nil {
			return err
		}
		idx, err := loadIndex(cmd.Context())
		if err != nil {
			return err
		}
		nbs, err := idx.Neighbors(cmd.Context(), n, queryK, queryThreshold)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		scorer := engine.Scorer()
		for _, nb := range nbs {
			r, err := scorer.Classify(nb.Similarity)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d\t%.4f\t%s\n", nb.Node.N, nb.Similarity, r.Law)
		}
		return nil
	},
}

var traverseCmd = &cobra.Command{
	Use:   "traverse N",
	Short: "Walk the similarity graph depth-first from N",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := parseN(args[0])
		if err != nil {
			return err
		}
		idx, err := loadIndex(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		opts := graph.TraverseOptions{
			DepthLimit: traverseDepth,
			Threshold:  traverseThresh,
			FanOut:     traverseFanOut,
			MaxVisits:  traverseVisits,
		}
		res, err := idx.Traverse(cmd.Context(), n, opts, func(node *graph.Node, depth int) error {
			fmt.Fprintf(out, "%s%d\n", strings.Repeat("  ", depth), node.N)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "visited %d nodes, max depth %d, bound %s\n", len(res.Visited), res.MaxDepth, res.Bound)
		if err := res.Err(); err != nil {
			slog.Warn("traversal cut short", "bound", res.Bound)
		}
		return nil
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score A B",
	Short: "Score and classify the signatures of A! and B!",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := parseN(args[0])
		if err != nil {
			return err
		}
		b, err := parseN(args[1])
		if err != nil {
			return err
		}
		provider, err := newProvider(scoreMaxN)
		if err != nil {
			return err
		}
		sa, err := provider.Signature(a)
		if err != nil {
			return err
		}
		sb, err := provider.Signature(b)
		if err != nil {
			return err
		}
		r, err := engine.Scorer().Score(sa, sb)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sig(%d!) = %s\n", a, sa)
		fmt.Fprintf(out, "sig(%d!) = %s\n", b, sb)
		fmt.Fprintf(out, "score %.4f %s\n", r.Score, r.Law)
		return nil
	},
}

var familiesCmd = &cobra.Command{
	Use:   "families",
	Short: "Group indexed nodes into families sharing a prime support",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadIndex(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, f := range lattice.Families(lattice.FromIndex(idx)) {
			fmt.Fprintf(out, "%v\t%d nodes\t%s\n", f.Primes, len(f.Nodes), formatRange(f.Nodes))
		}
		return nil
	},
}

// formatRange renders ascending values, collapsing consecutive runs.
func formatRange(ns []uint64) string {
	var parts []string
	for i := 0; i < len(ns); {
		j := i
		for j+1 < len(ns) && ns[j+1] == ns[j]+1 {
			j++
		}
		if j == i {
			parts = append(parts, strconv.FormatUint(ns[i], 10))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", ns[i], ns[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}
