package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spencerau/NeRF-to-3DPrint/internal/store"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
)

var listCmd = &cobra.Command{
	Use:   "list [run-id]",
	Short: "List rendered and preprocessed datasets recorded in the catalog",
	Long:  "Without arguments, lists every run. With a run ID (or a unique prefix of one, as printed by the table), lists the files that run wrote.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		runList(cmd.Context(), prefix)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, prefix string) {
	ok, err := openCatalog(ctx)
	if err != nil {
		utils.Die("Catalog unavailable", err, nil)
	}
	if !ok {
		utils.Die("Catalog unavailable", errNoCatalog, nil)
	}

	runs, err := DB.ListRuns(ctx)
	if err != nil {
		utils.Die("Failed to list runs", err, nil)
	}
	if prefix == "" {
		printRuns(os.Stdout, runs)
		return
	}

	run, err := findRun(runs, prefix)
	if err != nil {
		utils.Die("Unknown run", err, nil)
	}
	items, err := DB.ListItems(ctx, run.ID)
	if err != nil {
		utils.Die("Failed to list items", err, nil)
	}
	printItems(os.Stdout, run, items)
}

// findRun returns the single run whose ID starts with prefix.
func findRun(runs []store.Run, prefix string) (store.Run, error) {
	var matches []store.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return store.Run{}, fmt.Errorf("no run matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return store.Run{}, fmt.Errorf("%q matches %d runs, use a longer prefix", prefix, len(matches))
	}
}

func printItems(out io.Writer, run store.Run, items []store.Item) {
	fmt.Fprintf(out, "%s run %s: %s -> %s\n", run.Kind, run.ID, run.Source, run.OutputDir)
	if len(items) == 0 {
		fmt.Fprintln(out, "No files recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INDEX\tPATH\tPOSITION")
	fmt.Fprintln(w, "-----\t----\t--------")
	for _, it := range items {
		pos := "-"
		if len(it.Position) == 3 {
			pos = fmt.Sprintf("%.3f, %.3f, %.3f", it.Position[0], it.Position[1], it.Position[2])
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", it.FrameIndex, it.Path, pos)
	}
	w.Flush()
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No datasets found in catalog.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tITEMS\tSTARTED\tFINISHED\tSOURCE\tOUTPUT")
	fmt.Fprintln(w, "--\t----\t-----\t-------\t--------\t------\t------")

	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format("2006-01-02 15:04")
		}
		id := r.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			id, r.Kind, r.ItemCount,
			r.StartedAt.Local().Format("2006-01-02 15:04"), finished,
			r.Source, r.OutputDir)
	}
	w.Flush()
}
