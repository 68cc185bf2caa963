package cmd

import (
	"fmt"
	"net/url"
	"path/filepath"

	"go-seedkeeper/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Long:  `Prints the settings in effect, including flag and environment overrides.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", settings.Path())
		return toml.NewEncoder(out).Encode(settings.Settings())
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), settings.Path())
	},
}

var configWatchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Set the directories watched for new torrent files",
	Long: `Replaces the list of watched directories. Without arguments watching is turned
off. A running instance picks up the change immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs := make([]string, 0, len(args))
		for _, a := range args {
			abs, err := filepath.Abs(a)
			if err != nil {
				return err
			}
			dirs = append(dirs, abs)
		}
		changed := settings.Update(func(s *models.Settings) {
			s.AutomaticAddDirectories = dirs
		})
		if len(changed) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Watched directories unchanged")
			return nil
		}
		if err := settings.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %d directories\n", len(dirs))
		return nil
	},
}

var configFeedsCmd = &cobra.Command{
	Use:   "feeds [url...]",
	Short: "Set the RSS feeds polled for new torrents",
	Long: `Replaces the list of RSS feeds. Without arguments no feeds are polled. Feeds are
checked every MinutesBetweenRssUpdates minutes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		urls := make([]string, 0, len(args))
		for _, a := range args {
			u, err := url.Parse(a)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return fmt.Errorf("not a feed URL: %s", a)
			}
			urls = append(urls, u.String())
		}
		changed := settings.Update(func(s *models.Settings) {
			s.RssFeeds = urls
		})
		if len(changed) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Feeds unchanged")
			return nil
		}
		if err := settings.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Polling %d feeds\n", len(urls))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configWatchCmd)
	configCmd.AddCommand(configFeedsCmd)
}
