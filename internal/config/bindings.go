package config

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"meshcore/internal/blob"
	"meshcore/internal/checkpoint"
	"meshcore/internal/mesh"
	"meshcore/internal/refinement"
	"meshcore/internal/telemetry"
	"meshcore/internal/topology"
)

// StoreConfig maps the storage section onto checkpoint.OpenStore.
func (c Config) StoreConfig(logger telemetry.Logger) checkpoint.StoreConfig {
	return checkpoint.StoreConfig{
		Driver:      checkpoint.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
		BadgerDir:   c.Storage.BadgerDir,
		Logger:      logger,
	}
}

// BlobConfig maps the blob section onto blob.Open.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		Root:   c.Blob.Root,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			PathStyle:       c.Blob.S3.PathStyle,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
		},
	}
}

// Logger builds a zerolog backed logger writing to w.
func (c Config) Logger(w io.Writer) (telemetry.Logger, error) {
	return telemetry.NewZerologLogger(w, c.Telemetry.LogLevel)
}

// Metrics builds the configured recorder. reg receives the Prometheus
// collectors and may be nil for the other backends.
func (c Config) Metrics(reg prometheus.Registerer) (telemetry.MetricsRecorder, error) {
	switch c.Telemetry.Metrics {
	case "", "none":
		return telemetry.NopMetrics(), nil
	case "expvar":
		return telemetry.NewExpvarMetricsRecorder(c.Telemetry.ExpvarName), nil
	case "prometheus":
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		return telemetry.NewPrometheusMetricsRecorder(reg)
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", c.Telemetry.Metrics)
	}
}

// Shape returns the root cell shape of the configured grid.
func (m MeshConfig) Shape() (*topology.CellTopology, error) {
	switch m.Dimension {
	case 1:
		return topology.Line(), nil
	case 2:
		return topology.Quadrilateral(), nil
	case 3:
		return topology.Hexahedron(), nil
	default:
		return nil, fmt.Errorf("no grid shape for dimension %d", m.Dimension)
	}
}

// Options returns the tolerance and periodic rules of the grid.
func (m MeshConfig) Options() []mesh.Option {
	var opts []mesh.Option
	if m.Tolerance > 0 {
		opts = append(opts, mesh.WithVertexTolerance(m.Tolerance))
	}
	if len(m.Periodic) > 0 {
		bcs := make([]mesh.PeriodicBC, 0, len(m.Periodic))
		for _, axis := range m.Periodic {
			bcs = append(bcs, mesh.AxisPeriodicBC{Axis: axis, From: m.Lower[axis], To: m.Upper[axis]})
		}
		opts = append(opts, mesh.WithPeriodicBCs(bcs...))
	}
	return opts
}

// ResolvePattern resolves the refinement pattern for shape. "regular" selects
// the isotropic pattern of the shape.
func (r RefinementConfig) ResolvePattern(shape *topology.CellTopology) (*refinement.Pattern, error) {
	if r.Pattern == "" || r.Pattern == "regular" {
		return refinement.Regular(shape), nil
	}
	p, err := refinement.ByKey(refinement.Key(r.Pattern))
	if err != nil {
		return nil, err
	}
	if p.ParentTopology() != shape {
		return nil, fmt.Errorf("pattern %s does not refine %s cells", r.Pattern, shape.Key())
	}
	return p, nil
}
