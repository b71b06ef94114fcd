// Package stac holds the wire structures of the STAC-API subset the
// federator consumes (collection listings, extents, feature pages).
package stac

import "encoding/json"

const LinkRelItems = "items"

type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type SpatialExtent struct {
	BBox [][]float64 `json:"bbox"`
}

// TemporalExtent intervals use null for an open bound
type TemporalExtent struct {
	Interval [][]*string `json:"interval"`
}

type Extent struct {
	Spatial  SpatialExtent  `json:"spatial"`
	Temporal TemporalExtent `json:"temporal"`
}

type Collection struct {
	ID          string `json:"id"`
	Type        string `json:"type,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Extent      Extent `json:"extent"`
	Links       []Link `json:"links,omitempty"`
}

// ItemsLink returns the href of the items link, or "" if the collection
// does not expose one
func (c Collection) ItemsLink() string {
	for _, l := range c.Links {
		if l.Rel == LinkRelItems {
			return l.Href
		}
	}
	return ""
}

// TemporalInterval returns the first temporal interval of the
// collection; an absent or null bound is returned as ""
func (c Collection) TemporalInterval() (start, end string) {
	if len(c.Extent.Temporal.Interval) == 0 {
		return "", ""
	}
	interval := c.Extent.Temporal.Interval[0]
	if len(interval) > 0 && interval[0] != nil {
		start = *interval[0]
	}
	if len(interval) > 1 && interval[1] != nil {
		end = *interval[1]
	}
	return start, end
}

type CollectionList struct {
	Collections []Collection `json:"collections"`
}

// FeatureCollection only counts features, their content is opaque here
type FeatureCollection struct {
	Features []json.RawMessage `json:"features"`
}
