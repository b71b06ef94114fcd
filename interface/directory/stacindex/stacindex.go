// Package stacindex lists candidate catalogs from a public STAC
// directory service (stacindex.org compatible API).
package stacindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spatialgrid/stac-federator/service"
	"github.com/spatialgrid/stac-federator/service/log"
)

const DefaultURL = "https://stacindex.org/api/catalogs"

type Directory struct {
	URL string
}

// Entry is one candidate of the directory listing
type Entry struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Summary   string `json:"summary"`
	IsPrivate bool   `json:"isPrivate"`
	IsAPI     bool   `json:"isApi"`
}

// Candidates returns the publicly accessible, API-capable entries of the directory
func (d Directory) Candidates(ctx context.Context) ([]Entry, error) {
	url := d.URL
	if url == "" {
		url = DefaultURL
	}
	body, err := service.GetBodyRetry(url, 3)
	if err != nil {
		return nil, fmt.Errorf("Candidates.GetBodyRetry: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("Candidates.Unmarshal: %w (response: %s)", err, body)
	}

	candidates := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsPrivate || !entry.IsAPI {
			log.Logger(ctx).Sugar().Debugf("skip directory entry %s (private:%v api:%v)", entry.Title, entry.IsPrivate, entry.IsAPI)
			continue
		}
		candidates = append(candidates, entry)
	}
	return candidates, nil
}
