package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"go-seedkeeper/internal/database"
	"go-seedkeeper/internal/index"
	"go-seedkeeper/internal/store"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// searchLimitFlag holds the value of the --limit flag
var searchLimitFlag int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search cached torrents and completion history",
	Long: `Searches names, save locations and trackers of cached torrents and completed
ones. The query uses bleve query string syntax, e.g. "ubuntu", "+name:debian -kind:history".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimitFlag, "limit", 20, "Maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	st := settings.Settings()
	idx, err := index.OpenOrCreateIndex("")
	if err != nil {
		return err
	}
	defer idx.Close()

	loaded, err := cachedSessions(store.New(afero.NewOsFs(), st.TorrentCachePath(), st.FastResumePath()))
	if err != nil {
		return err
	}
	for _, l := range loaded {
		if err := index.IndexSession(idx, l.Session); err != nil {
			log.WithError(err).Warnf("Failed to index %s", l.Session.Name)
		}
	}
	indexHistory(idx, st.HistoryPath())

	hits, err := index.Search(idx, strings.Join(args, " "), searchLimitFlag)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Score\tKind\tName\tLocation\tInfo Hash")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.2f\t%s\t%s\t%s\t%s\n", h.Score, h.Kind, h.Name, h.SavePath, h.InfoHash)
	}
	tw.Flush()
	return nil
}

// indexHistory adds completion records when the history is not held by a running instance.
func indexHistory(idx bleve.Index, path string) {
	db, err := database.Open(path)
	if err != nil {
		log.WithError(err).Warn("History unavailable, searching cached torrents only")
		return
	}
	defer db.Close()

	records, err := db.History()
	if err != nil {
		log.WithError(err).Warn("Failed to read history")
		return
	}
	for _, r := range records {
		if err := index.IndexRecord(idx, r); err != nil {
			log.WithError(err).Debugf("Failed to index record %s", r.ID)
		}
	}
}
