package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"meshcore/internal/blob"
	"meshcore/internal/checkpoint"
)

func newCheckpointCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Save, load, list and export mesh checkpoints",
	}
	cmd.AddCommand(
		newCheckpointSaveCmd(a),
		newCheckpointLoadCmd(a),
		newCheckpointListCmd(a),
		newCheckpointDeleteCmd(a),
		newCheckpointExportCmd(a),
		newCheckpointImportCmd(a),
	)
	return cmd
}

func newCheckpointSaveCmd(a *app) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Store the configured refined grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := a.prepared(cmd.Context(), 0)
			if err != nil {
				return err
			}
			if label == "" {
				label = "meshctl"
			}
			return a.save(cmd.Context(), topo, label)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "label recorded with the checkpoint")
	return cmd
}

func newCheckpointLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <id>",
		Short: "Restore a checkpoint and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			topo, snap, err := a.manager(store).Load(cmd.Context(), args[0], a.meshOptions()...)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "checkpoint %s %q created %s\n", snap.ID, snap.Label, snap.CreatedAt.Format(time.RFC3339))
			a.printSummary(topo)
			return nil
		},
	}
}

func newCheckpointListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored checkpoints, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			summaries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tCREATED\tDIM\tROOTS\tREFINEMENTS")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", s.ID, s.Label, s.CreatedAt.Format(time.RFC3339), s.SpaceDim, s.Roots, s.Refinements)
			}
			return tw.Flush()
		},
	}
}

func newCheckpointDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a stored checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", args[0])
			return nil
		},
	}
}

func newCheckpointExportCmd(a *app) *cobra.Command {
	var (
		replace bool
		withURL bool
		expiry  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Copy a stored checkpoint to blob storage as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			snap, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			blobs, err := a.openBlob(ctx)
			if err != nil {
				return err
			}
			if replace {
				if _, err := blobs.Delete(ctx, checkpoint.ExportKey(snap.ID)); err != nil {
					return err
				}
			}
			info, err := checkpoint.Export(ctx, blobs, snap)
			if errors.Is(err, blob.ErrExists) {
				return fmt.Errorf("%w (use --replace to overwrite)", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "exported %s (%d bytes, %s)\n", info.Key, info.Size, blobs.Driver())
			if !withURL {
				return nil
			}
			url, err := blobs.PresignURL(ctx, info.Key, blob.SignedURLOptions{Expiry: expiry})
			if errors.Is(err, blob.ErrUnsupported) {
				a.logger.Warn("blob driver cannot sign URLs", "driver", string(blobs.Driver()))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, url)
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite an existing export")
	cmd.Flags().BoolVar(&withURL, "url", false, "print a signed download URL")
	cmd.Flags().DurationVar(&expiry, "expiry", 15*time.Minute, "lifetime of the signed URL")
	return cmd
}

func newCheckpointImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <id>",
		Short: "Copy an exported checkpoint from blob storage into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			blobs, err := a.openBlob(ctx)
			if err != nil {
				return err
			}
			snap, err := checkpoint.Import(ctx, blobs, args[0])
			if err != nil {
				return err
			}
			if _, err := checkpoint.Restore(ctx, snap, a.meshOptions()...); err != nil {
				return fmt.Errorf("imported checkpoint does not restore: %w", err)
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Save(ctx, snap); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "imported %s\n", snap.ID)
			return nil
		},
	}
}
