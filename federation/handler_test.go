package federation_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	db "github.com/spatialgrid/stac-federator/interface/database"
)

var _ = Describe("Catalog HTTP API", func() {
	var srv *httptest.Server

	post := func(path, body string) *http.Response {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		for _, table := range []string{"stac_ingestion_status", "stored_search_parameters", "public_collection", "public_catalog"} {
			_, err := pgdb.ExecContext(ctx, "DELETE from "+table)
			Expect(err).NotTo(HaveOccurred())
		}
		srv = httptest.NewServer(fed.NewHandler())
	})

	AfterEach(func() {
		srv.Close()
	})

	It("should create a catalog and list it", func() {
		resp := post("/catalogs", `{"name": "Example", "url": "https://stac.example.com"}`)
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(200))
		catalog := db.Catalog{}
		Expect(json.NewDecoder(resp.Body).Decode(&catalog)).NotTo(HaveOccurred())
		Expect(catalog.ID).NotTo(Equal(0))

		resp, err := http.Get(srv.URL + "/catalogs")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		catalogs := []db.Catalog{}
		Expect(json.NewDecoder(resp.Body).Decode(&catalogs)).NotTo(HaveOccurred())
		Expect(len(catalogs)).To(Equal(1))
	})

	It("should refuse a catalog without a url", func() {
		resp := post("/catalogs", `{"name": "Example"}`)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(400))
	})

	It("should answer 409 on a duplicate url", func() {
		resp := post("/catalogs", `{"name": "Example", "url": "https://stac.example.com"}`)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(200))
		resp = post("/catalogs", `{"name": "Other", "url": "https://stac.example.com"}`)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(409))
	})

	It("should answer 404 on an unknown catalog", func() {
		resp, err := http.Get(srv.URL + "/catalogs/999999")
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(404))
	})

	It("should answer 400 on a non-numeric catalog id", func() {
		resp, err := http.Get(srv.URL + "/catalogs/not-a-number")
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(400))
	})

	It("should answer 400 on a degenerate search bbox", func() {
		resp := post("/catalogs/search", `{"bbox": [0, 0, 1]}`)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(400))
	})

	It("should answer 400 on an unparsable search interval", func() {
		resp := post("/catalogs/search", `{"bbox": [0, 0, 1, 1], "datetime": "not-a-date/either"}`)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(400))
	})

	It("should answer an empty grouped search", func() {
		resp := post("/catalogs/search", `{"bbox": [0, 0, 1, 1]}`)
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(200))
		groups := []json.RawMessage{}
		Expect(json.NewDecoder(resp.Body).Decode(&groups)).NotTo(HaveOccurred())
		Expect(groups).To(BeEmpty())
	})

	It("should delete every catalog at once", func() {
		for _, url := range []string{"https://a.example.com", "https://b.example.com"} {
			resp := post("/catalogs", fmt.Sprintf(`{"name": "cat", "url": %q}`, url))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
		}
		req, err := http.NewRequest("DELETE", srv.URL+"/catalogs", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(200))
		removed := struct {
			CatalogsRemoved int `json:"catalogs_removed"`
		}{}
		Expect(json.NewDecoder(resp.Body).Decode(&removed)).NotTo(HaveOccurred())
		Expect(removed.CatalogsRemoved).To(Equal(2))

		n := 0
		err = pgdb.QueryRowContext(ctx, "select count(*) from public_catalog").Scan(&n)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("should delete a catalog and cascade its collections", func() {
		resp := post("/catalogs", `{"name": "Example", "url": "https://stac.example.com"}`)
		defer resp.Body.Close()
		catalog := db.Catalog{}
		Expect(json.NewDecoder(resp.Body).Decode(&catalog)).NotTo(HaveOccurred())

		_, err := pgdb.ExecContext(ctx,
			"insert into public_collection(catalog_id, id, spatial_extent) values($1, $2, ST_GeomFromEWKT($3))",
			catalog.ID, "c1", "SRID=4326;MULTIPOLYGON(((0 0,1 0,1 1,0 1,0 0)))")
		Expect(err).NotTo(HaveOccurred())

		req, err := http.NewRequest("DELETE", fmt.Sprintf("%s/catalogs/%d", srv.URL, catalog.ID), nil)
		Expect(err).NotTo(HaveOccurred())
		delResp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		delResp.Body.Close()
		Expect(delResp.StatusCode).To(Equal(200))

		n := 0
		err = pgdb.QueryRowContext(ctx, "select count(*) from public_collection where catalog_id=$1", catalog.ID).Scan(&n)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})
})
