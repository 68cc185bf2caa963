package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"go-seedkeeper/internal/database"
	"go-seedkeeper/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// historyForgetFlag holds the value of the --forget flag
var historyForgetFlag string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show completed torrents",
	Long: `Lists every completion seedkeeper has handled, oldest first, with where the
content was moved and which command ran.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyForgetFlag, "forget", "", "Info hash to forget so its completion actions run again")
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := database.Open(settings.Settings().HistoryPath())
	if err != nil {
		return fmt.Errorf("opening history (is seedkeeper running?): %w", err)
	}
	defer db.Close()

	if historyForgetFlag != "" {
		if err := db.Forget(historyForgetFlag); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", historyForgetFlag)
		return nil
	}

	records, err := db.History()
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), records)
	return nil
}

func printHistory(out io.Writer, records []models.CompletionRecord) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Completed\tName\tLocation\tCommand\tNote")
	fmt.Fprintln(tw, "---------\t----\t--------\t-------\t----")
	for _, r := range records {
		location := r.SavePath
		if r.RelocatedTo != "" {
			location = r.RelocatedTo
		}
		note := ""
		switch {
		case r.Filtered:
			note = "filtered"
		case r.RelocateError != "":
			note = "move failed: " + r.RelocateError
		case r.CommandError != "":
			note = r.CommandError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", humanize.Time(r.CompletedAt), r.Name, location, r.Command, note)
	}
	tw.Flush()
}
