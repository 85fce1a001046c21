package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"da-go/internal/da"
)

var accessionCmd = &cobra.Command{
	Use:   "accession SOURCE DEST",
	Short: "Copy or move SOURCE into DEST/ID and write DEST/ID.xml",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, _ := cmd.Flags().GetString("id")
		move, _ := cmd.Flags().GetBool("move")
		mode := da.ModeCopy
		if move {
			mode = da.ModeMove
		}

		a, err := newApp("accession")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res, runErr := a.Accession(cmd.Context(), args[0], args[1], id, mode)
		if res == nil {
			return runErr
		}

		out := cmd.OutOrStdout()
		color := shouldColorize(out)
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "%s %s: %v\n", paint(color, warnColor, "skipped"), w.Path, w.Err)
		}
		if res.ManifestPath != "" {
			fmt.Fprintf(out, "Manifest: %s\n", res.ManifestPath)
		}
		fmt.Fprintf(out, "Accessioned %d file(s), %s, %d skipped\n",
			res.Manifest.Len(), humanBytes(res.Manifest.TotalSize()), len(res.Warnings))
		if len(res.Pruned) > 0 {
			fmt.Fprintf(out, "Removed %d empty source director(ies)\n", len(res.Pruned))
		}
		if res.Escrowed {
			fmt.Fprintln(out, "Manifest escrowed")
		}
		if errors.Is(runErr, da.ErrAborted) {
			fmt.Fprintln(out, paint(color, failColor, "Accession aborted; the manifest lists only the files completed."))
		}
		return runErr
	},
}

func init() {
	accessionCmd.Flags().String("id", "", "Accession number (required)")
	accessionCmd.Flags().Bool("move", false, "Move files instead of copying them")
	accessionCmd.MarkFlagRequired("id")
}
