// Package searchindex removes collections from the external search-index
// service fronting the target STAC API.
package searchindex

import (
	"context"
	"fmt"

	"github.com/spatialgrid/stac-federator/service"
)

type Client struct {
	Endpoint  string
	AuthName  string
	AuthPswd  string
	AuthToken string
}

// RemoveCollection deletes the indexed collection from the search service
func (c Client) RemoveCollection(ctx context.Context, collectionID string) error {
	if c.Endpoint == "" {
		return nil
	}
	url := service.TrimURL(c.Endpoint) + "/collections/" + collectionID
	resp, err := service.HTTPDeleteWithAuth(ctx, url, c.AuthName, c.AuthPswd, c.AuthToken)
	if err != nil {
		return fmt.Errorf("RemoveCollection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 && resp.StatusCode != 204 && resp.StatusCode != 404 {
		return fmt.Errorf("RemoveCollection: %s: %s", url, resp.Status)
	}
	return nil
}
