package common

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Parameter keys of the ingestion payload shared with the selective ingester
const (
	ParamSourceCatalogURL = "source_stac_catalog_url"
	ParamTargetCatalogURL = "target_stac_catalog_url"
	ParamUpdate           = "update"
	ParamCallbackID       = "callback_id"
	ParamCollections      = "collections"
	ParamBBox             = "bbox"
	ParamDatetime         = "datetime"
)

// IngestionParameters is the filter set posted to the selective ingester.
// Caller-supplied fields (collections, bbox, datetime, ...) are kept as-is.
type IngestionParameters map[string]interface{}

// Clone returns a shallow copy of the parameter set
func (p IngestionParameters) Clone() IngestionParameters {
	c := make(IngestionParameters, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Collections returns the requested collection ids, or nil if the
// parameter set has no collections filter
func (p IngestionParameters) Collections() []string {
	raw, ok := p[ParamCollections]
	if !ok {
		return nil
	}
	var ids []string
	switch vs := raw.(type) {
	case []string:
		ids = vs
	case []interface{}:
		for _, v := range vs {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	return ids
}

// Update returns the update flag (initial load vs forced update)
func (p IngestionParameters) Update() bool {
	u, _ := p[ParamUpdate].(bool)
	return u
}

// Value implements the driver.Value interface
func (p IngestionParameters) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface.
func (p *IngestionParameters) Scan(value interface{}) error {
	if value == nil {
		*p = IngestionParameters{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, p)
}

// IngestionReport is the result body returned by the selective ingester
// once a run has finished.
type IngestionReport struct {
	NewlyStoredCollections      []string `json:"newly_stored_collections"`
	NewlyStoredCollectionsCount int      `json:"newly_stored_collections_count"`
	UpdatedCollections          []string `json:"updated_collections"`
	UpdatedCollectionsCount     int      `json:"updated_collections_count"`
	NewlyStoredItemsCount       int      `json:"newly_stored_items_count"`
	UpdatedItemsCount           int      `json:"updated_items_count"`
	AlreadyStoredItemsCount     int      `json:"already_stored_items_count"`
}
