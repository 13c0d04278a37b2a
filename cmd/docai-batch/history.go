package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/docai-batch/internal/taskstore"
)

var (
	historyLimit int
	servePort    int
)

func init() {
	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded batches",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of batches to show")
	rootCmd.AddCommand(historyCmd)

	// show command
	showCmd := &cobra.Command{
		Use:   "show BATCH_ID",
		Short: "Show one recorded batch",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the batch history API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	batches, err := store.ListBatches(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("No batches recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTARTED\tWORKERS\tOK\tFAILED\tDURATION\tDOCS/SEC")
	for _, b := range batches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%.2f\n",
			b.ID[:min(8, len(b.ID))], b.Name, humanize.Time(b.StartedAt), b.Workers,
			b.Succeeded, b.Failed, b.WallClock.Round(time.Second), b.Throughput)
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := store.GetBatch(cmd.Context(), args[0])
	if errors.Is(err, taskstore.ErrNotFound) {
		return fmt.Errorf("batch %s not found", args[0])
	}
	if err != nil {
		return err
	}

	printBatch(rep)
	fmt.Printf("  Started:    %s (%s)\n", rep.StartedAt.Format(time.RFC3339), humanize.Time(rep.StartedAt))

	fmt.Println("\nDocuments:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, res := range rep.BySubmission() {
		var detail string
		if res.Succeeded() {
			detail = fmt.Sprintf("%d pages, %d tables", res.Extraction.PageCount, res.Extraction.TableCount)
		} else {
			detail = res.Failure.String()
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n",
			res.Seq, res.DocumentID, res.Status(), res.Duration.Round(time.Millisecond), detail)
	}
	return w.Flush()
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	port := servePort
	if port == 0 {
		port = a.cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", a.cfg.Web.Host, port)

	srv, err := a.startAPI(cmd.Context(), addr)
	if err != nil {
		return err
	}
	fmt.Printf("Serving batch history on http://%s\n", addr)
	return srv.Wait(cmd.Context())
}
