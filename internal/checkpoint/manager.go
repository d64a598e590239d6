package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"meshcore/internal/mesh"
	"meshcore/internal/telemetry"
	"meshcore/pkg/domain"
)

// Manager saves and loads topologies through a checkpoint store, recording
// checkpoint.save and checkpoint.load observations.
type Manager struct {
	Store   domain.CheckpointStore
	Logger  telemetry.Logger
	Metrics telemetry.MetricsRecorder
	Tracer  telemetry.Tracer
}

func (m *Manager) logger() telemetry.Logger {
	if m.Logger == nil {
		return telemetry.NopLogger()
	}
	return m.Logger
}

// Save captures topo and stores the snapshot.
func (m *Manager) Save(ctx context.Context, topo *mesh.Topology, label string) (domain.Snapshot, error) {
	if m.Store == nil {
		return domain.Snapshot{}, errors.New("checkpoint: no store configured")
	}
	var snap domain.Snapshot
	err := telemetry.Instrument(ctx, m.Tracer, m.Metrics, telemetry.OpCheckpointSave, func(ctx context.Context) error {
		snap = Capture(topo, label)
		return m.Store.Save(ctx, snap)
	})
	if err != nil {
		m.logger().Error("checkpoint save failed", "error", err)
		return domain.Snapshot{}, fmt.Errorf("save checkpoint: %w", err)
	}
	m.logger().Info("checkpoint saved", "id", snap.ID, "roots", len(snap.Roots), "refinements", len(snap.Refinements))
	return snap, nil
}

// Load fetches snapshot id and restores it with opts.
func (m *Manager) Load(ctx context.Context, id string, opts ...mesh.Option) (*mesh.Topology, domain.Snapshot, error) {
	if m.Store == nil {
		return nil, domain.Snapshot{}, errors.New("checkpoint: no store configured")
	}
	var (
		snap domain.Snapshot
		topo *mesh.Topology
	)
	err := telemetry.Instrument(ctx, m.Tracer, m.Metrics, telemetry.OpCheckpointLoad, func(ctx context.Context) error {
		var err error
		if snap, err = m.Store.Load(ctx, id); err != nil {
			return err
		}
		topo, err = Restore(ctx, snap, opts...)
		return err
	})
	if err != nil {
		m.logger().Error("checkpoint load failed", "id", id, "error", err)
		return nil, domain.Snapshot{}, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	m.logger().Info("checkpoint loaded", "id", id, "active_cells", topo.ActiveCellCount())
	return topo, snap, nil
}
