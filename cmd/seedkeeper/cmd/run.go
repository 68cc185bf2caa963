package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go-seedkeeper/internal/clipboard"
	"go-seedkeeper/internal/database"
	"go-seedkeeper/internal/downloader"
	"go-seedkeeper/internal/engine"
	"go-seedkeeper/internal/feeds"
	"go-seedkeeper/internal/models"
	"go-seedkeeper/internal/orchestrator"
	"go-seedkeeper/internal/store"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// runMinimized holds the value of the --minimized flag
var runMinimized bool

// runNoDHT holds the value of the --no-dht flag
var runNoDHT bool

var runCmd = &cobra.Command{
	Use:   "run [magnet|torrent file]",
	Short: "Run the torrent sessions",
	Long: `Starts the torrent client, restores the sessions of the previous run and keeps
them going until interrupted. An optional magnet link or torrent file is added
on start. While running, lines typed on stdin are added the same way.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runMinimized, "minimized", false, "Start without the live status display")
	runCmd.Flags().BoolVar(&runNoDHT, "no-dht", false, "Disable the DHT")
}

// activationArgs turns the command line into loop activation arguments.
func activationArgs(minimized bool, args []string) []string {
	if minimized {
		return []string{orchestrator.MinimizedFlag}
	}
	return args
}

func runRun(cmd *cobra.Command, args []string) error {
	st := settings.Settings()

	lock, err := acquireLock(st.LockPath())
	if errors.Is(err, ErrAlreadyRunning) {
		return fmt.Errorf("%w; type links into its console or drop files into a watched directory", err)
	}
	if err != nil {
		return err
	}
	defer lock.Unlock()

	engCfg := engine.ConfigFromSettings(st)
	engCfg.NoDHT = runNoDHT
	eng, err := engine.NewClient(engCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.WithError(err).Warn("Error closing torrent client")
		}
	}()

	db, err := database.Open(st.HistoryPath())
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer db.Close()

	fs := afero.NewOsFs()
	status := newStatusDisplay(os.Stdout)
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	var con *console
	opts := orchestrator.Options{
		Settings:  settings,
		Store:     store.New(fs, st.TorrentCachePath(), st.FastResumePath()),
		Engine:    eng,
		History:   db,
		Clipboard: clipboard.System{},
		Indicator: status,
		Notifier:  orchestrator.LogNotifier{},
		Fs:        fs,
	}
	poller, closeFeeds := newFeedPoller(st, fs, db)
	defer closeFeeds()
	opts.FeedPoller = func(ctx context.Context) []orchestrator.FeedItem {
		found := poller.Poll(ctx, settings.Settings().RssFeeds)
		items := make([]orchestrator.FeedItem, 0, len(found))
		for _, f := range found {
			items = append(items, orchestrator.FeedItem{Ref: f.Ref, Done: func() { poller.Mark(f) }})
		}
		return items
	}
	if interactive {
		con = newConsole(os.Stdout)
		opts.Prompter = con
	}

	loop, err := orchestrator.New(opts)
	if err != nil {
		return err
	}
	settings.Watch(loop.SettingsChanged)

	if con != nil {
		con.target = loop
		go con.readLoop(os.Stdin)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status.Start()
	defer status.Stop()

	log.Infof("Seedkeeper running, data in %s", st.DataPath)
	return loop.Run(ctx, activationArgs(runMinimized, args))
}

// newFeedPoller builds the feed poller. Requests are logged to a file when
// LogFeedRequests is set.
func newFeedPoller(st models.Settings, fs afero.Fs, db *database.DB) (*feeds.Poller, func()) {
	closeFn := func() {}
	var transport http.RoundTripper
	if st.LogFeedRequests {
		lt, err := feeds.NewLoggingTransport(nil, st.FeedLogPath())
		if err != nil {
			log.WithError(err).Warn("Feed request logging disabled")
		} else {
			transport = lt
			closeFn = func() {
				if err := lt.Close(); err != nil {
					log.WithError(err).Warn("Error closing feed log")
				}
			}
		}
	}
	httpClient := feeds.NewHTTPClient(transport, 3)
	dl := downloader.NewDownloader(httpClient, fs)
	return feeds.NewPoller(feeds.NewClient(httpClient), dl, db, fs, st.FeedSpoolPath()), closeFn
}
