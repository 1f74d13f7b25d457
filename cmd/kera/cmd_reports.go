package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kera/storage"
)

var (
	reportsLimit  int
	reportsOutput string
)

// reportsCmd represents the reports command group
var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Review reports from past collection runs",
	Long: `List and re-render inventory reports persisted by 'kera collect --save'
or by daemon mode. Stored reports are immutable snapshots; reviewing
them never triggers a new collection.`,
}

var reportsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored collection runs, newest first",
	Example: `  kera reports list --limit 10`,
	RunE:    runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:     "show <run-id>",
	Short:   "Render one stored report",
	Example: `  kera reports show 6f1c...\n  kera reports show 6f1c... --output csv`,
	Args:    cobra.ExactArgs(1),
	RunE:    runReportsShow,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)

	reportsListCmd.Flags().IntVar(&reportsLimit, "limit", 20, "Maximum runs to list (0 for all)")
	reportsShowCmd.Flags().StringVarP(&reportsOutput, "output", "o", "table", "Output format: table, json, csv")
}

func openStore() (*storage.ReportStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewReportStore(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open report store: %w", err)
	}
	return store, nil
}

func runReportsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs := store.List(reportsLimit)
	if len(runs) == 0 {
		fmt.Println("No stored reports. Run 'kera collect --save' first.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tDURATION\tRESOURCES\tUNITS\tFAILED")
	for _, meta := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			meta.RunID,
			meta.StartedAt.Local().Format(time.RFC3339),
			meta.Duration.Round(time.Millisecond),
			meta.Resources,
			meta.Units,
			meta.Failed,
		)
	}
	return w.Flush()
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rpt, err := store.Get(args[0])
	if err != nil {
		return err
	}
	return render(os.Stdout, rpt, reportsOutput)
}
