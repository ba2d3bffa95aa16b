// Command spcctl analyses measurement sheets from the command line and can
// push them to spc-server directly, bypassing the agent.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/measurestack/measurestack/agent/internal/report"
	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/tabular"
	"github.com/measurestack/measurestack/pkg/types"
	"github.com/measurestack/measurestack/pkg/wire"
)

var (
	analyzeJSON bool

	recordsQuery string
	recordsSort  string
	recordsDesc  bool
	recordsLimit int
	recordsTail  int

	histogramBins int

	pushServer    string
	pushKeyEnv    string
	pushKeyHeader string
	pushTimeout   time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "spcctl",
		Short:        "Process capability analysis for measurement sheets",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newRecordsCmd())
	rootCmd.AddCommand(newHistogramCmd())
	rootCmd.AddCommand(newPushCmd())
	return rootCmd
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Summarise one or more sheets as a single working set",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyzeCmd,
	}
	cmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the summary as JSON")
	return cmd
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	datasets, err := loadDatasets(args)
	if err != nil {
		return err
	}
	sum, err := spc.Compute(spc.WorkingSet(datasets))
	if err != nil {
		return fmt.Errorf("summarise: %w", err)
	}
	if analyzeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	if sum.Spec.Inverted() {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: upper limit is below lower limit")
	}
	return writeLines(cmd.OutOrStdout(), report.Summary(sum))
}

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records FILE...",
		Short: "List records, optionally filtered and sorted",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRecordsCmd,
	}
	cmd.Flags().StringVar(&recordsQuery, "q", "", "serial substring filter (case-insensitive)")
	cmd.Flags().StringVar(&recordsSort, "sort", spc.FieldIndex, "sort field: index|serial|value|usl|lsl")
	cmd.Flags().BoolVar(&recordsDesc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&recordsLimit, "limit", 0, "show at most N records")
	cmd.Flags().IntVar(&recordsTail, "tail", 0, "only the last N records of the working set")
	return cmd
}

func runRecordsCmd(cmd *cobra.Command, args []string) error {
	if !spc.ValidSortField(recordsSort) {
		return fmt.Errorf("invalid --sort value %q", recordsSort)
	}
	datasets, err := loadDatasets(args)
	if err != nil {
		return err
	}
	recs := spc.WorkingSet(datasets)
	if recordsTail > 0 {
		recs = spc.Tail(recs, recordsTail)
	}
	recs = spc.SortBy(spc.Filter(recs, recordsQuery), recordsSort, recordsDesc)
	if recordsLimit > 0 && len(recs) > recordsLimit {
		recs = recs[:recordsLimit]
	}
	return writeLines(cmd.OutOrStdout(), report.Records(recs))
}

func newHistogramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "histogram FILE...",
		Short: "Print the value distribution against the spec limits",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runHistogramCmd,
	}
	cmd.Flags().IntVar(&histogramBins, "bins", spc.DefaultBins, "number of bins")
	return cmd
}

func runHistogramCmd(cmd *cobra.Command, args []string) error {
	datasets, err := loadDatasets(args)
	if err != nil {
		return err
	}
	bins := spc.Histogram(spc.WorkingSet(datasets), histogramBins)
	if bins == nil {
		return fmt.Errorf("histogram needs at least 5 records and 1 bin")
	}
	return writeLines(cmd.OutOrStdout(), report.Histogram(bins))
}

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push FILE...",
		Short: "Send sheets to spc-server as new datasets",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPushCmd,
	}
	cmd.Flags().StringVar(&pushServer, "server", "localhost:50051", "spc-server gRPC address")
	cmd.Flags().StringVar(&pushKeyEnv, "api-key-env", "", "environment variable holding the API key")
	cmd.Flags().StringVar(&pushKeyHeader, "api-key-header", "x-api-key", "metadata key for the API key")
	cmd.Flags().DurationVar(&pushTimeout, "timeout", 10*time.Second, "per-dataset send timeout")
	return cmd
}

func runPushCmd(cmd *cobra.Command, args []string) error {
	datasets, err := loadDatasets(args)
	if err != nil {
		return err
	}

	conn, err := grpc.Dial(pushServer, grpc.WithTransportCredentials(insecure.NewCredentials())) //nolint:staticcheck
	if err != nil {
		return fmt.Errorf("dial %s: %w", pushServer, err)
	}
	defer conn.Close()
	client := wire.NewDatasetServiceClient(conn)

	host, _ := os.Hostname()
	for _, ds := range datasets {
		ctx, cancel := context.WithTimeout(cmd.Context(), pushTimeout)
		if pushKeyEnv != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, pushKeyHeader, os.Getenv(pushKeyEnv))
		}
		resp, err := client.PushDataset(ctx, &wire.PushRequest{
			AgentID:  "spcctl@" + host,
			SourceID: "spcctl",
			SentAt:   time.Now().UTC(),
			Dataset:  ds,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("push %s: %w", ds.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d records (server total %d)\n",
			ds.ID, ds.Name, len(ds.Records), resp.Records)
	}
	return nil
}

// loadDatasets decodes each file into a dataset, in argument order.
// Files without data rows are skipped with a warning.
func loadDatasets(paths []string) ([]types.Dataset, error) {
	out := make([]types.Dataset, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		recs, err := tabular.Read(p, f)
		f.Close()
		if err != nil {
			if errors.Is(err, tabular.ErrNoRows) {
				fmt.Fprintf(os.Stderr, "warning: %s has no data rows, skipped\n", p)
				continue
			}
			return nil, err
		}
		out = append(out, types.Dataset{
			ID:        uuid.NewString(),
			Name:      filepath.Base(p),
			Size:      st.Size(),
			CreatedAt: time.Now().UTC(),
			Records:   recs,
		})
	}
	if len(out) == 0 {
		return nil, spc.ErrEmptyDataset
	}
	return out, nil
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
