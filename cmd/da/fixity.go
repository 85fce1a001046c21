package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"da-go/internal/da"
	"da-go/internal/report"
)

var fixityCmd = &cobra.Command{
	Use:   "fixity [MANIFEST]",
	Short: "Verify an accession against its manifest",
	Long: `Verify every file listed in MANIFEST and write fixity_<ID>.csv and
fixity_<ID>.log. With --from-escrow the manifest is read from the vault and
MANIFEST is replaced by --id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		req := da.FixityRequest{}
		req.Root, _ = cmd.Flags().GetString("root")
		req.SourceRoot, _ = cmd.Flags().GetString("source")
		req.OutDir, _ = cmd.Flags().GetString("out")
		req.FromEscrow, _ = cmd.Flags().GetBool("from-escrow")
		req.AccessionID, _ = cmd.Flags().GetString("id")

		switch {
		case req.FromEscrow && req.AccessionID == "":
			return errors.New("--from-escrow needs --id")
		case !req.FromEscrow && len(args) == 0:
			return errors.New("a manifest path is required")
		case len(args) > 0:
			req.ManifestPath = args[0]
		}

		a, err := newApp("fixity")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if req.FromEscrow {
			if req.Decrypt, err = unlock(a); err != nil {
				return err
			}
		}

		res, err := a.Fixity(cmd.Context(), req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		color := shouldColorize(out)
		if failures := res.Report.Failures(); len(failures) > 0 {
			rows := make([][]string, 0, len(failures))
			for _, f := range failures {
				rows = append(rows, []string{paintStatus(color, f.Status), f.RelativePath, f.ErrorDetail})
			}
			fmt.Fprintln(out, renderTable([]string{"Status", "File", "Detail"}, rows, nil))
		}

		sum := res.Report.Summary()
		fmt.Fprintf(out, "%s: %s\n", res.Manifest.AccessionID, sum)
		fmt.Fprintf(out, "Report: %s\nLog:    %s\n", res.Paths.CSV, res.Paths.Log)
		if !sum.Clean() {
			return errNotClean
		}
		return nil
	},
}

func paintStatus(color bool, s report.Status) string {
	switch s {
	case report.StatusOK:
		return paint(color, okColor, string(s))
	case report.StatusMissing:
		return paint(color, warnColor, string(s))
	default:
		return paint(color, failColor, string(s))
	}
}

func init() {
	fixityCmd.Flags().String("root", "", "Tree to verify (default: DEST/ID beside the manifest)")
	fixityCmd.Flags().String("source", "", "Fallback tree when the accession folder is gone")
	fixityCmd.Flags().String("out", "", "Directory for the report and log (default: beside the manifest)")
	fixityCmd.Flags().Bool("from-escrow", false, "Read the manifest from the escrow vault")
	fixityCmd.Flags().String("id", "", "Accession number, with --from-escrow")
}
