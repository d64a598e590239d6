// Command meshctl builds, refines, balances and checkpoints hierarchical
// meshes described by a YAML or TOML configuration file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"meshcore/internal/blob"
	"meshcore/internal/checkpoint"
	"meshcore/internal/config"
	"meshcore/internal/mesh"
	"meshcore/internal/telemetry"
	"meshcore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// app carries what every subcommand resolves from --config.
type app struct {
	configPath string
	from       string

	out      io.Writer
	errOut   io.Writer
	cfg      config.Config
	logger   telemetry.Logger
	metrics  telemetry.MetricsRecorder
	tracer   telemetry.Tracer
	registry *prometheus.Registry

	fromOnce sync.Once
	fromSnap domain.Snapshot
	fromErr  error
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{out: stdout, errOut: stderr}
	root := &cobra.Command{
		Use:           "meshctl",
		Short:         "Build, refine and checkpoint hierarchical meshes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.reportMetrics()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (.yaml, .yml or .toml)")
	root.PersistentFlags().StringVar(&a.from, "from", "", "start from a stored checkpoint instead of the configured grid")

	root.AddCommand(
		newGridCmd(a),
		newRefineCmd(a),
		newEnforceCmd(a),
		newPruneCmd(a),
		newValidateCmd(a),
		newCheckpointCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.logger, err = cfg.Logger(a.errOut); err != nil {
		return err
	}
	a.registry = prometheus.NewRegistry()
	if a.metrics, err = cfg.Metrics(a.registry); err != nil {
		return err
	}
	a.tracer = telemetry.NopTracer()
	if cfg.Telemetry.Trace {
		a.tracer = telemetry.NewJSONTracer(a.errOut)
	}
	a.logger.Debug("configuration loaded", "path", a.configPath, "dimension", cfg.Mesh.Dimension, "ranks", cfg.Distribution.Ranks)
	return nil
}

func (a *app) reportMetrics() {
	switch rec := a.metrics.(type) {
	case *telemetry.ExpvarMetricsRecorder:
		snap := rec.Snapshot()
		a.logger.Info("metrics", "expvar", rec.Name(), "results", snap.Results)
	case *telemetry.PrometheusMetricsRecorder:
		families, err := a.registry.Gather()
		if err != nil {
			a.logger.Warn("gather metrics", "error", err)
			return
		}
		a.logger.Info("metrics", "families", len(families))
	}
}

// meshOptions wires the configured tolerance, periodic rules and telemetry
// into a topology.
func (a *app) meshOptions() []mesh.Option {
	opts := a.cfg.Mesh.Options()
	return append(opts,
		mesh.WithLogger(a.logger),
		mesh.WithMetrics(a.metrics),
		mesh.WithTracer(a.tracer),
	)
}

func (a *app) openStore(ctx context.Context) (domain.CheckpointStore, error) {
	return checkpoint.OpenStore(ctx, a.cfg.StoreConfig(a.logger))
}

func (a *app) openBlob(ctx context.Context) (blob.Store, error) {
	return blob.Open(ctx, a.cfg.BlobConfig())
}

func (a *app) manager(store domain.CheckpointStore) *checkpoint.Manager {
	return &checkpoint.Manager{Store: store, Logger: a.logger, Metrics: a.metrics, Tracer: a.tracer}
}

// topology returns the starting mesh: the --from checkpoint when given,
// otherwise the configured grid with ownership assigned for rank.
func (a *app) topology(ctx context.Context, rank int) (*mesh.Topology, error) {
	if a.from == "" {
		return buildGrid(a.cfg, rank, a.meshOptions()...)
	}
	var loaded *mesh.Topology
	a.fromOnce.Do(func() {
		store, err := a.openStore(ctx)
		if err != nil {
			a.fromErr = err
			return
		}
		defer store.Close()
		loaded, a.fromSnap, a.fromErr = a.manager(store).Load(ctx, a.from, a.meshOptions()...)
	})
	if a.fromErr != nil || loaded != nil {
		return loaded, a.fromErr
	}
	// Later callers, such as the other ranks of enforce, restore their own
	// copy of the snapshot fetched once above.
	return checkpoint.Restore(ctx, a.fromSnap, a.meshOptions()...)
}

// save stores topo when label is non-empty and prints the new id.
func (a *app) save(ctx context.Context, topo *mesh.Topology, label string) error {
	if label == "" {
		return nil
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	snap, err := a.manager(store).Save(ctx, topo, label)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "checkpoint %s\n", snap.ID)
	return nil
}

func (a *app) printSummary(topo *mesh.Topology) {
	fmt.Fprintf(a.out, "dimension=%d cells=%d known=%d active=%d global_active=%d vertices=%d owned=%d pruned=%d\n",
		topo.Dimension(), topo.CellCount(), len(topo.KnownCells()), len(topo.ActiveCells()),
		topo.ActiveCellCount(), topo.VertexCount(), len(topo.OwnedCells()), topo.PruningOrdinal())
}
