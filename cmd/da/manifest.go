package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"da-go/internal/manifest"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect and convert manifests",
}

var manifestShowCmd = &cobra.Command{
	Use:   "show MANIFEST",
	Short: "List the entries of a manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.ReadFile(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Accession %s, created %s\n", m.AccessionID, m.CreatedAt.Format(time.RFC3339))
		if m.IngestNote != "" {
			fmt.Fprintln(out, m.IngestNote)
		}

		rows := make([][]string, 0, m.Len())
		for _, e := range m.Entries() {
			modified := ""
			if !e.LastModified.IsZero() {
				modified = e.LastModified.Format("2006-01-02 15:04:05")
			}
			rows = append(rows, []string{
				e.RelativePath,
				strconv.FormatInt(e.Size, 10),
				string(e.Digest.Algorithm),
				e.Digest.Value,
				modified,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"File", "Size", "Algorithm", "Digest", "Modified"},
			rows,
			[]columnAlignment{alignLeft, alignRight},
		))
		fmt.Fprintf(out, "%d file(s), %s\n", m.Len(), humanBytes(m.TotalSize()))
		return nil
	},
}

var manifestImportCmd = &cobra.Command{
	Use:   "import LEGACY OUT",
	Short: "Rewrite a manifest in a historical layout as a flat manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp("manifest import")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		m, err := a.ImportManifest(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries of %s into %s\n", m.Len(), m.AccessionID, args[1])
		return nil
	},
}

func init() {
	manifestCmd.AddCommand(manifestShowCmd)
	manifestCmd.AddCommand(manifestImportCmd)
}
