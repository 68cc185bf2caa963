package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"go-seedkeeper/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached torrents",
	Long:  `Lists the torrents that the next run restores, with their save locations.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	st := settings.Settings()
	s := store.New(afero.NewOsFs(), st.TorrentCachePath(), st.FastResumePath())
	loaded, err := cachedSessions(s)
	if err != nil {
		return err
	}
	printSessions(cmd.OutOrStdout(), loaded)
	return nil
}

func printSessions(out io.Writer, loaded []store.Loaded) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Name\tSize\tInfo Hash\tSave Path\tAdded")
	fmt.Fprintln(tw, "----\t----\t---------\t---------\t-----")
	for _, l := range loaded {
		size := "metadata pending"
		if l.Definition.HasInfo() {
			if info, err := l.Definition.MetaInfo.UnmarshalInfo(); err == nil {
				size = humanize.IBytes(uint64(info.TotalLength()))
			}
		}
		added := "-"
		if !l.Session.AddedAt.IsZero() {
			added = humanize.Time(l.Session.AddedAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", l.Session.Name, size, l.Session.ID(), l.Session.SavePath, added)
	}
	tw.Flush()
	fmt.Fprintf(out, "%d torrents\n", len(loaded))
}
