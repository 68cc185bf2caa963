package index

import (
	"fmt"
	"os"

	"go-seedkeeper/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

// Document kinds stored in the index.
const (
	KindSession = "session"
	KindHistory = "history"
)

// Document is what gets indexed for a session or a history record.
type Document struct {
	Kind     string   `json:"kind"`
	InfoHash string   `json:"infoHash"`
	Name     string   `json:"name"`
	SavePath string   `json:"savePath"`
	Trackers []string `json:"trackers,omitempty"`
	State    string   `json:"state,omitempty"`
}

// Hit is one search result.
type Hit struct {
	ID       string
	Score    float64
	Kind     string
	InfoHash string
	Name     string
	SavePath string
}

// OpenOrCreateIndex opens the index at path, creating it if needed. An empty
// path gives an in-memory index.
func OpenOrCreateIndex(path string) (bleve.Index, error) {
	mapping := bleve.NewIndexMapping()
	if path == "" {
		return bleve.NewMemOnly(mapping)
	}
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening index %s: %w", path, err)
		}
		log.Debugf("Opened search index at %s", path)
		return idx, nil
	}
	log.Debugf("Creating search index at %s", path)
	idx, err := bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("creating index %s: %w", path, err)
	}
	return idx, nil
}

func sessionID(infoHash string) string { return "s_" + infoHash }
func historyID(id string) string       { return "h_" + id }

// IndexSession adds or replaces the document of a session.
func IndexSession(idx bleve.Index, s *models.Session) error {
	doc := Document{
		Kind:     KindSession,
		InfoHash: s.ID(),
		Name:     s.Name,
		SavePath: s.SavePath,
		Trackers: s.Trackers,
		State:    string(s.State),
	}
	return idx.Index(sessionID(doc.InfoHash), doc)
}

// RemoveSession deletes the document of a session.
func RemoveSession(idx bleve.Index, infoHash string) error {
	return idx.Delete(sessionID(infoHash))
}

// IndexRecord adds a completion history record.
func IndexRecord(idx bleve.Index, rec models.CompletionRecord) error {
	savePath := rec.SavePath
	if rec.RelocatedTo != "" {
		savePath = rec.RelocatedTo
	}
	doc := Document{
		Kind:     KindHistory,
		InfoHash: rec.InfoHash,
		Name:     rec.Name,
		SavePath: savePath,
	}
	return idx.Index(historyID(rec.ID), doc)
}

// Search runs a query string query and returns up to limit hits, best first.
func Search(idx bleve.Index, query string, limit int) ([]Hit, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"*"}
	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			ID:       h.ID,
			Score:    h.Score,
			Kind:     stringField(h.Fields, "kind"),
			InfoHash: stringField(h.Fields, "infoHash"),
			Name:     stringField(h.Fields, "name"),
			SavePath: stringField(h.Fields, "savePath"),
		})
	}
	return hits, nil
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
