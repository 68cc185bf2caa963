package cmd

import (
	"errors"
	"fmt"

	"go-seedkeeper/internal/ingest"
	"go-seedkeeper/internal/models"
	"go-seedkeeper/internal/store"

	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// addDestFlag holds the value of the --dest flag
var addDestFlag string

var addCmd = &cobra.Command{
	Use:   "add <magnet|torrent file>",
	Short: "Add a torrent for the next run",
	Long: `Caches a magnet link or torrent file so the next "seedkeeper run" starts it.
Refuses while an instance is running; type the link into its console instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addDestFlag, "dest", "", "Save location (default is the download location plus the torrent name)")
}

// cacheRegistry registers sessions against the identities already cached.
// The engine picks them up on the next run.
type cacheRegistry struct {
	known map[metainfo.Hash]bool
}

func newCacheRegistry(loaded []store.Loaded) *cacheRegistry {
	r := &cacheRegistry{known: make(map[metainfo.Hash]bool)}
	for _, l := range loaded {
		r.known[l.Session.InfoHash] = true
	}
	return r
}

func (r *cacheRegistry) Has(hash metainfo.Hash) bool {
	return r.known[hash]
}

func (r *cacheRegistry) Register(s *models.Session, _ models.Definition) error {
	r.known[s.InfoHash] = true
	return nil
}

// cachedSessions reads every cached session without touching fast-resume data.
func cachedSessions(s *store.Store) ([]store.Loaded, error) {
	paths, err := s.Scan()
	if err != nil {
		return nil, err
	}
	loaded := make([]store.Loaded, 0, len(paths))
	for _, p := range paths {
		l, err := s.Load(p)
		if err != nil {
			log.WithError(err).Warnf("Skipping cached torrent %s", p)
			continue
		}
		loaded = append(loaded, l)
	}
	return loaded, nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	st := settings.Settings()

	lock, err := acquireLock(st.LockPath())
	if err != nil {
		return err
	}
	defer lock.Unlock()

	fs := afero.NewOsFs()
	s := store.New(fs, st.TorrentCachePath(), st.FastResumePath())
	loaded, err := cachedSessions(s)
	if err != nil {
		return err
	}

	def, err := ingest.Resolve(fs, args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	dest := addDestFlag
	if dest == "" {
		dest = ingest.DefaultDestination(st.DefaultDownloadLocation, def)
	}

	g := ingest.NewGateway(fs, s, newCacheRegistry(loaded))
	g.SetDeleteSource(st.DeleteTorrentsAfterAdd)
	sess, err := g.Ingest(def, dest, true)
	if errors.Is(err, ingest.ErrAlreadyAdded) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s has already been added\n", def.Name())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) to %s\n", sess.Name, sess.ID(), sess.SavePath)
	return nil
}
