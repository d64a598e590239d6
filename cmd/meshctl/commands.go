package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"meshcore/internal/comm"
	"meshcore/internal/irregularity"
	"meshcore/internal/mesh"
)

// prepared returns the --from checkpoint, or the configured grid refined as
// configured.
func (a *app) prepared(ctx context.Context, rank int) (*mesh.Topology, error) {
	topo, err := a.topology(ctx, rank)
	if err != nil || a.from != "" {
		return topo, err
	}
	if err := refine(topo, a.cfg.Refinement); err != nil {
		return nil, err
	}
	return topo, nil
}

func newGridCmd(a *app) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Build the configured root grid and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := buildGrid(a.cfg, 0, a.meshOptions()...)
			if err != nil {
				return err
			}
			a.printSummary(topo)
			return a.save(cmd.Context(), topo, label)
		},
	}
	cmd.Flags().StringVar(&label, "save", "", "store the result as a checkpoint with this label")
	return cmd
}

func newRefineCmd(a *app) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Apply the configured refinement to the grid or a checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := a.topology(cmd.Context(), 0)
			if err != nil {
				return err
			}
			if err := refine(topo, a.cfg.Refinement); err != nil {
				return err
			}
			a.printSummary(topo)
			return a.save(cmd.Context(), topo, label)
		},
	}
	cmd.Flags().StringVar(&label, "save", "", "store the result as a checkpoint with this label")
	return cmd
}

func newEnforceCmd(a *app) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "enforce",
		Short: "Refine until no edge is more than one level irregular",
		Long: `Runs the 1-irregularity loop on the configured number of in-process
ranks. Every rank holds the whole mesh and proposes refinements for the
roots it owns; the proposals are merged each round.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				mu     sync.Mutex
				report irregularity.Report
				level  int
				result *mesh.Topology
			)
			err := comm.Run(cmd.Context(), a.cfg.Distribution.Ranks, func(ctx context.Context, c comm.Communicator) error {
				topo, err := a.prepared(ctx, c.Rank())
				if err != nil {
					return err
				}
				e := &irregularity.Enforcer{
					Topology:  topo,
					Comm:      c,
					MaxRounds: a.cfg.Distribution.MaxRounds,
					Logger:    a.logger,
					Metrics:   a.metrics,
					Tracer:    a.tracer,
				}
				r, err := e.Enforce(ctx)
				if err != nil {
					return fmt.Errorf("rank %d: %w", c.Rank(), err)
				}
				irr, err := e.Irregularity(ctx)
				if err != nil {
					return err
				}
				if c.Rank() == 0 {
					mu.Lock()
					report, level, result = r, irr, topo
					mu.Unlock()
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "rounds=%d refined=%d irregularity=%d\n", report.Rounds, report.Refined, level)
			a.printSummary(result)
			return a.save(cmd.Context(), result, label)
		},
	}
	cmd.Flags().StringVar(&label, "save", "", "store rank 0's result as a checkpoint with this label")
	return cmd
}

func newPruneCmd(a *app) *cobra.Command {
	var (
		rank  int
		label string
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Reduce the mesh to one rank's owned cells and their halo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rank < 0 || rank >= a.cfg.Distribution.Ranks {
				return fmt.Errorf("rank %d outside 0..%d", rank, a.cfg.Distribution.Ranks-1)
			}
			topo, err := a.prepared(cmd.Context(), rank)
			if err != nil {
				return err
			}
			if err := topo.PruneToOwned(a.cfg.Distribution.NeighborDim); err != nil {
				return err
			}
			a.printSummary(topo)
			return a.save(cmd.Context(), topo, label)
		},
	}
	cmd.Flags().IntVar(&rank, "rank", 0, "rank whose partition is kept")
	cmd.Flags().StringVar(&label, "save", "", "store the pruned mesh as a checkpoint with this label")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the topology invariants of the refined grid or a checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := a.prepared(cmd.Context(), 0)
			if err != nil {
				return err
			}
			res, err := topo.Validate(cmd.Context())
			for _, v := range res.Violations {
				fmt.Fprintf(a.out, "%s\t%s\t%s %d\t%s\n", v.Severity, v.Rule, v.Subject, v.Index, v.Message)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "ok: %d active cells, %d warnings\n", len(topo.ActiveCells()), len(res.Violations))
			return nil
		},
	}
}
