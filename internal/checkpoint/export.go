package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"meshcore/internal/blob"
	"meshcore/internal/infra/persistence"
	"meshcore/pkg/domain"
)

const (
	exportPrefix      = "checkpoints/"
	exportSuffix      = ".json"
	exportContentType = "application/json"
)

// ExportKey is the blob key a snapshot is exported under.
func ExportKey(id string) string { return exportPrefix + id + exportSuffix }

// Export writes snap as indented JSON to checkpoints/<id>.json. An existing
// export of the same id is an error wrapping blob.ErrExists.
func Export(ctx context.Context, store blob.Store, snap domain.Snapshot) (blob.Info, error) {
	if snap.ID == "" {
		return blob.Info{}, persistence.ErrMissingID
	}
	if snap.Version == 0 {
		snap.Version = domain.SnapshotVersion
	}
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}
	info, err := store.Put(ctx, ExportKey(snap.ID), bytes.NewReader(body), blob.PutOptions{
		ContentType: exportContentType,
		Metadata: map[string]string{
			"snapshot-id": snap.ID,
			"space-dim":   strconv.Itoa(snap.SpaceDim),
			"roots":       strconv.Itoa(len(snap.Roots)),
			"refinements": strconv.Itoa(len(snap.Refinements)),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("export snapshot %s: %w", snap.ID, err)
	}
	return info, nil
}

// Import reads an exported snapshot back.
func Import(ctx context.Context, store blob.Store, id string) (domain.Snapshot, error) {
	_, rc, err := store.Get(ctx, ExportKey(id))
	if errors.Is(err, blob.ErrNotFound) {
		return domain.Snapshot{}, persistence.NotFound(id)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("import snapshot %s: %w", id, err)
	}
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	snap, err := persistence.Decode(body)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if snap.ID != id {
		return domain.Snapshot{}, fmt.Errorf("export %s holds snapshot %s", ExportKey(id), snap.ID)
	}
	return snap, nil
}

// ListExports returns the ids of exported snapshots in key order.
func ListExports(ctx context.Context, store blob.Store) ([]string, error) {
	infos, err := store.List(ctx, exportPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Key, exportPrefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, exportSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, exportSuffix))
	}
	return ids, nil
}
