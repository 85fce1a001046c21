package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ops, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No operations recorded.")
			return nil
		}

		rows := make([][]string, 0, len(ops))
		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			rows = append(rows, []string{
				"#" + strconv.FormatInt(op.ID, 10),
				op.Operation,
				op.StartedAt.Local().Format(timeLayout),
				op.Status,
				duration,
				op.Parameters,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"ID", "Operation", "Started", "Status", "Duration", "Parameters"},
			rows,
			[]columnAlignment{alignRight},
		))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status ACCESSION",
	Short: "Show what the register knows about an accession",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		runs, _ := cmd.Flags().GetInt("runs")

		a, err := newApp("status")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		st, err := a.Status(args[0], runs)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		rec := st.Accession
		fmt.Fprintln(out, renderTable([]string{"Accession", rec.AccessionID}, [][]string{
			{"Created", rec.CreatedAt.Local().Format(timeLayout)},
			{"Mode", string(rec.Mode)},
			{"Source", rec.SourceRoot},
			{"Destination", rec.DestinationRoot},
			{"Manifest", rec.ManifestPath},
			{"Files", fmt.Sprintf("%d (%s, %d skipped)", rec.FileCount, humanBytes(rec.TotalBytes), rec.WarningCount)},
			{"Algorithm", rec.Algorithm},
			{"Aborted", strconv.FormatBool(rec.Aborted)},
			{"Escrowed", strconv.FormatBool(rec.Escrowed)},
		}, nil))

		if len(st.Runs) == 0 {
			fmt.Fprintln(out, "No fixity runs recorded.")
			return nil
		}
		color := shouldColorize(out)
		rows := make([][]string, 0, len(st.Runs))
		for _, r := range st.Runs {
			result := paint(color, okColor, "clean")
			if r.OK != r.Total {
				result = paint(color, failColor, "problems")
			}
			rows = append(rows, []string{
				r.StartedAt.Local().Format(timeLayout),
				strconv.Itoa(r.Total),
				strconv.Itoa(r.OK),
				strconv.Itoa(r.Mismatch),
				strconv.Itoa(r.Missing),
				strconv.Itoa(r.Errors),
				result,
				r.ReportPath,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Fixity run", "Files", "OK", "Mismatch", "Missing", "Error", "Result", "Report"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
		))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	statusCmd.Flags().IntP("runs", "n", 10, "Maximum number of fixity runs to show (0 for all)")
}
