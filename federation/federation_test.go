package federation_test

import (
	"errors"
	"strconv"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/spatialgrid/stac-federator/common"
	"github.com/spatialgrid/stac-federator/federation/stac"
	db "github.com/spatialgrid/stac-federator/interface/database"
	"github.com/spatialgrid/stac-federator/service/temporal"
)

func strPtr(s string) *string {
	return &s
}

var _ = Describe("Federation", func() {
	var err error
	catalogURL := "https://stac.example.com"

	europe := stac.Collection{
		ID:          "europe-dem",
		Title:       "Europe DEM",
		Description: "Elevation over Europe",
		Extent: stac.Extent{
			Spatial:  stac.SpatialExtent{BBox: [][]float64{{-10, 35, 30, 70}}},
			Temporal: stac.TemporalExtent{Interval: [][]*string{{strPtr("2018-01-01T00:00:00Z"), strPtr("2020-01-01T00:00:00Z")}}},
		},
	}
	pacific := stac.Collection{
		ID: "pacific-sst",
		Extent: stac.Extent{
			Spatial:  stac.SpatialExtent{BBox: [][]float64{{150, -50, 179, 10}}},
			Temporal: stac.TemporalExtent{Interval: [][]*string{{nil, nil}}},
		},
	}

	cleanTables := func() {
		_, err = pgdb.ExecContext(ctx, "DELETE from stac_ingestion_status")
		Expect(err).NotTo(HaveOccurred())
		_, err = pgdb.ExecContext(ctx, "DELETE from stored_search_parameters")
		Expect(err).NotTo(HaveOccurred())
		_, err = pgdb.ExecContext(ctx, "DELETE from public_collection")
		Expect(err).NotTo(HaveOccurred())
		_, err = pgdb.ExecContext(ctx, "DELETE from public_catalog")
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("Registering a catalog", func() {
		BeforeEach(cleanTables)

		Context("With an empty catalog table", func() {
			var catalog db.Catalog
			JustBeforeEach(func() {
				catalog, err = fed.RegisterCatalog(ctx, "Example", catalogURL, "a test catalog")
				Expect(err).NotTo(HaveOccurred())
			})
			It("should create a catalog with this url", func() {
				count := 0
				err := pgdb.QueryRowContext(ctx, "select count(*) from public_catalog where url=$1", catalogURL).Scan(&count)
				Expect(err).NotTo(HaveOccurred())
				Expect(count).To(Equal(1))
			})
			It("should create a catalog with the returned id", func() {
				count := 0
				err := pgdb.QueryRowContext(ctx, "select count(*) from public_catalog where id=$1", catalog.ID).Scan(&count)
				Expect(err).NotTo(HaveOccurred())
				Expect(count).To(Equal(1))
			})
		})

		Context("With a catalog table that already contains this url", func() {
			var first, second db.Catalog
			JustBeforeEach(func() {
				first, err = fed.Backend.CreateCatalog(ctx, "Example", catalogURL, "")
				Expect(err).NotTo(HaveOccurred())
				_, err = fed.Backend.CreateCatalog(ctx, "Other name", catalogURL, "")
			})
			It("should return an AlreadyExists error", func() {
				Expect(err).To(Equal(db.ErrAlreadyExists{Type: "catalog", ID: catalogURL}))
			})
			It("should leave the stored state unchanged", func() {
				count := 0
				err := pgdb.QueryRowContext(ctx, "select count(*) from public_catalog where url=$1", catalogURL).Scan(&count)
				Expect(err).NotTo(HaveOccurred())
				Expect(count).To(Equal(1))
			})
			It("should be reused by RegisterCatalog", func() {
				second, err = fed.RegisterCatalog(ctx, "Other name", catalogURL, "")
				Expect(err).NotTo(HaveOccurred())
				Expect(second.ID).To(Equal(first.ID))
			})
		})
	})

	Describe("Storing collections", func() {
		var catalog db.Catalog
		var count int

		BeforeEach(func() {
			cleanTables()
			catalog, err = fed.RegisterCatalog(ctx, "Example", catalogURL, "")
			Expect(err).NotTo(HaveOccurred())
		})

		Context("With an empty collection table", func() {
			JustBeforeEach(func() {
				count, err = fed.StoreCollections(ctx, catalog, []stac.Collection{europe, pacific})
				Expect(err).NotTo(HaveOccurred())
			})
			It("should store one row per collection", func() {
				Expect(count).To(Equal(2))
				n := 0
				err := pgdb.QueryRowContext(ctx, "select count(*) from public_collection where catalog_id=$1", catalog.ID).Scan(&n)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(2))
			})
			It("should store the temporal bounds", func() {
				n := 0
				err := pgdb.QueryRowContext(ctx,
					"select count(*) from public_collection where catalog_id=$1 and id=$2 and temporal_extent_start is not null and temporal_extent_end is not null",
					catalog.ID, europe.ID).Scan(&n)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			})
			It("should keep an open temporal extent null", func() {
				n := 0
				err := pgdb.QueryRowContext(ctx,
					"select count(*) from public_collection where catalog_id=$1 and id=$2 and temporal_extent_start is null and temporal_extent_end is null",
					catalog.ID, pacific.ID).Scan(&n)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			})
		})

		Context("With collections that are already stored", func() {
			JustBeforeEach(func() {
				_, err = fed.StoreCollections(ctx, catalog, []stac.Collection{europe, pacific})
				Expect(err).NotTo(HaveOccurred())
				updated := europe
				updated.Title = "Europe DEM v2"
				count, err = fed.StoreCollections(ctx, catalog, []stac.Collection{updated, pacific})
				Expect(err).NotTo(HaveOccurred())
			})
			It("should update in place instead of duplicating", func() {
				Expect(count).To(Equal(2))
				n := 0
				err := pgdb.QueryRowContext(ctx, "select count(*) from public_collection where catalog_id=$1", catalog.ID).Scan(&n)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(2))
				title := ""
				err = pgdb.QueryRowContext(ctx, "select title from public_collection where catalog_id=$1 and id=$2", catalog.ID, europe.ID).Scan(&title)
				Expect(err).NotTo(HaveOccurred())
				Expect(title).To(Equal("Europe DEM v2"))
			})
		})

		Context("With an unparsable temporal bound", func() {
			JustBeforeEach(func() {
				broken := stac.Collection{
					ID: "broken",
					Extent: stac.Extent{
						Spatial:  stac.SpatialExtent{BBox: [][]float64{{0, 0, 1, 1}}},
						Temporal: stac.TemporalExtent{Interval: [][]*string{{strPtr("not-a-date"), nil}}},
					},
				}
				count, err = fed.StoreCollections(ctx, catalog, []stac.Collection{europe, broken, pacific})
			})
			It("should surface the error", func() {
				Expect(errors.Is(err, temporal.ErrConvertingTimestamp)).To(BeTrue())
			})
			It("should keep the progress already staged", func() {
				n := 0
				err := pgdb.QueryRowContext(ctx, "select count(*) from public_collection where catalog_id=$1", catalog.ID).Scan(&n)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			})
		})

		Context("With an invalid spatial extent", func() {
			JustBeforeEach(func() {
				degenerate := stac.Collection{
					ID:     "degenerate",
					Extent: stac.Extent{Spatial: stac.SpatialExtent{BBox: [][]float64{{0, 0, 1}}}},
				}
				count, err = fed.StoreCollections(ctx, catalog, []stac.Collection{degenerate, europe})
				Expect(err).NotTo(HaveOccurred())
			})
			It("should skip the collection and store the others", func() {
				Expect(count).To(Equal(1))
				n := 0
				err := pgdb.QueryRowContext(ctx, "select count(*) from public_collection where catalog_id=$1 and id=$2", catalog.ID, europe.ID).Scan(&n)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			})
		})
	})

	Describe("Searching collections", func() {
		var catalogA, catalogB db.Catalog

		BeforeEach(func() {
			cleanTables()
			catalogA, err = fed.RegisterCatalog(ctx, "A", "https://a.example.com", "")
			Expect(err).NotTo(HaveOccurred())
			catalogB, err = fed.RegisterCatalog(ctx, "B", "https://b.example.com", "")
			Expect(err).NotTo(HaveOccurred())
			_, err = fed.StoreCollections(ctx, catalogA, []stac.Collection{europe})
			Expect(err).NotTo(HaveOccurred())
			_, err = fed.StoreCollections(ctx, catalogB, []stac.Collection{pacific})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the intersecting collections grouped by catalog", func() {
			groups, err := fed.FindCollections(ctx, []float64{0, 40, 10, 50}, "", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(groups)).To(Equal(1))
			Expect(groups[0].Catalog.ID).To(Equal(catalogA.ID))
			Expect(len(groups[0].Collections)).To(Equal(1))
			Expect(groups[0].Collections[0].ID).To(Equal(europe.ID))
		})

		It("should not return collections outside the bbox", func() {
			groups, err := fed.FindCollections(ctx, []float64{-170, -60, -150, -40}, "", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(BeEmpty())
		})

		It("should match a query interval inside the collection extent", func() {
			groups, err := fed.FindCollections(ctx, []float64{0, 40, 10, 50}, "2019-01-01T00:00:00Z/2019-06-01T00:00:00Z", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(groups)).To(Equal(1))
		})

		It("should not match a query interval starting before the collection extent", func() {
			groups, err := fed.FindCollections(ctx, []float64{0, 40, 10, 50}, "2017-01-01T00:00:00Z/2019-01-01T00:00:00Z", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(BeEmpty())
		})

		It("should match every temporal extent when the filter is empty", func() {
			groups, err := fed.FindCollections(ctx, []float64{160, -20, 175, 0}, "", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(groups)).To(Equal(1))
			Expect(groups[0].Collections[0].ID).To(Equal(pacific.ID))
		})

		It("should always match an open temporal extent", func() {
			groups, err := fed.FindCollections(ctx, []float64{160, -20, 175, 0}, "2030-01-01T00:00:00Z/2031-01-01T00:00:00Z", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(groups)).To(Equal(1))
			Expect(groups[0].Catalog.ID).To(Equal(catalogB.ID))
		})

		It("should restrict to the requested catalog", func() {
			groups, err := fed.FindCollections(ctx, []float64{0, 40, 10, 50}, "", &catalogB.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(BeEmpty())
		})

		It("should fail on an unknown catalog filter", func() {
			unknown := 999999
			_, err := fed.FindCollections(ctx, []float64{0, 40, 10, 50}, "", &unknown)
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
		})
	})

	Describe("Storing search parameters", func() {
		var catalog db.Catalog

		BeforeEach(func() {
			cleanTables()
			catalog, err = fed.RegisterCatalog(ctx, "Example", catalogURL, "")
			Expect(err).NotTo(HaveOccurred())
		})

		Context("With an identical parameter set stored twice", func() {
			JustBeforeEach(func() {
				p := db.SearchParameters{
					CatalogID:  catalog.ID,
					Collection: strPtr("europe-dem"),
					Parameters: common.IngestionParameters{common.ParamCollections: []interface{}{"europe-dem"}},
				}
				Expect(fed.Backend.CreateSearchParameters(ctx, p)).NotTo(HaveOccurred())
				Expect(fed.Backend.CreateSearchParameters(ctx, p)).NotTo(HaveOccurred())
			})
			It("should keep a single row", func() {
				n := 0
				err := pgdb.QueryRowContext(ctx, "select count(*) from stored_search_parameters where associated_catalog_id=$1", catalog.ID).Scan(&n)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			})
		})

		Context("With rows for several collections", func() {
			JustBeforeEach(func() {
				for _, id := range []string{"europe-dem", "pacific-sst"} {
					p := db.SearchParameters{
						CatalogID:  catalog.ID,
						Collection: strPtr(id),
						Parameters: common.IngestionParameters{common.ParamCollections: []interface{}{id}},
					}
					Expect(fed.Backend.CreateSearchParameters(ctx, p)).NotTo(HaveOccurred())
				}
			})
			It("should delete only the rows of the collection", func() {
				nb, err := fed.Backend.DeleteSearchParametersByCollection(ctx, "europe-dem")
				Expect(err).NotTo(HaveOccurred())
				Expect(nb).To(Equal(1))
				n := 0
				err = pgdb.QueryRowContext(ctx, "select count(*) from stored_search_parameters where associated_catalog_id=$1", catalog.ID).Scan(&n)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			})
		})
	})

	Describe("Tracking ingestion statuses", func() {
		var id int

		BeforeEach(func() {
			cleanTables()
			id, err = backend.CreateIngestionStatus(ctx, "https://a.example.com", "https://target.example.com", false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should create a PENDING record", func() {
			status, err := backend.IngestionStatus(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(common.StatusPENDING))
			Expect(status.TimeFinished).To(BeNil())
		})

		Context("When the run completes", func() {
			report := common.IngestionReport{
				NewlyStoredCollections:      []string{"europe-dem"},
				NewlyStoredCollectionsCount: 1,
				NewlyStoredItemsCount:       12,
			}
			JustBeforeEach(func() {
				err = backend.CompleteIngestionStatus(ctx, id, report)
				Expect(err).NotTo(HaveOccurred())
			})
			It("should record the report and close the record", func() {
				status, err := backend.IngestionStatus(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Status).To(Equal(common.StatusCOMPLETED))
				Expect(status.TimeFinished).NotTo(BeNil())
				Expect(status.NewlyStoredCollections).To(Equal([]string{"europe-dem"}))
				Expect(status.NewlyStoredItemsCount).To(Equal(12))
			})
			It("should refuse a second completion", func() {
				err = backend.CompleteIngestionStatus(ctx, id, report)
				Expect(err).To(Equal(db.ErrNotFound{Type: "pending ingestion status", ID: strconv.Itoa(id)}))
			})
			It("should refuse a late failure", func() {
				err = backend.FailIngestionStatus(ctx, id, "too late")
				Expect(err).To(Equal(db.ErrNotFound{Type: "pending ingestion status", ID: strconv.Itoa(id)}))
			})
		})

		Context("When the run fails", func() {
			JustBeforeEach(func() {
				err = backend.FailIngestionStatus(ctx, id, "ingester unreachable")
				Expect(err).NotTo(HaveOccurred())
			})
			It("should record the message and close the record", func() {
				status, err := backend.IngestionStatus(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Status).To(Equal(common.StatusFAILED))
				Expect(status.Message).To(Equal("ingester unreachable"))
				Expect(status.TimeFinished).NotTo(BeNil())
			})
		})

		It("should delete a record and return it", func() {
			status, err := backend.DeleteIngestionStatus(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.ID).To(Equal(id))
			_, err = backend.IngestionStatus(ctx, id)
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
		})
	})
})
