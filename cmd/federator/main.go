package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/spatialgrid/stac-federator/federation"
	"github.com/spatialgrid/stac-federator/interface/database/pg"
	"github.com/spatialgrid/stac-federator/interface/directory/stacindex"
	"github.com/spatialgrid/stac-federator/interface/searchindex"
	"github.com/spatialgrid/stac-federator/ingestion"
	"github.com/spatialgrid/stac-federator/service/log"
	"go.uber.org/zap"
)

type config struct {
	AppPort           string
	DbConnection      string
	DirectoryURL      string
	TargetStacURL     string
	IngesterEndpoint  string
	SearchIndexURL    string
	ProbeTimeout      time.Duration
	IngestTimeout     time.Duration
	DiscoveryWorkers  int
	IngesterAuthToken string
}

func newAppConfig() (*config, error) {
	appPort := flag.String("port", "8080", "federator port to use")
	dbConnection := flag.String("dbConnection", "", "database connection")
	directoryURL := flag.String("directory-url", stacindex.DefaultURL, "public catalog directory listing url")
	targetStacURL := flag.String("target-stac-url", "", "target STAC API the ingester writes into")
	ingesterEndpoint := flag.String("ingester-endpoint", "", "selective-ingester microservice endpoint")
	searchIndexURL := flag.String("searchindex-url", "", "external search-index service url (optional)")
	probeTimeout := flag.Duration("probe-timeout", 30*time.Second, "timeout of one probe/harvest HTTP call")
	ingestTimeout := flag.Duration("ingest-timeout", 15*time.Minute, "timeout of one ingestion call (0: wait indefinitely)")
	discoveryWorkers := flag.Int("discovery-workers", 4, "size of the discovery worker pool")
	ingesterAuthToken := flag.String("ingester-token", "", "bearer token for the ingester endpoint (optional)")
	flag.Parse()

	if *appPort == "" {
		return nil, fmt.Errorf("failed to initialize port application flag")
	}
	if *dbConnection == "" {
		return nil, fmt.Errorf("missing dbConnection config flag")
	}
	if *targetStacURL == "" {
		return nil, fmt.Errorf("missing target-stac-url config flag")
	}
	if *ingesterEndpoint == "" {
		return nil, fmt.Errorf("missing ingester-endpoint config flag")
	}
	return &config{
		AppPort:           *appPort,
		DbConnection:      *dbConnection,
		DirectoryURL:      *directoryURL,
		TargetStacURL:     *targetStacURL,
		IngesterEndpoint:  *ingesterEndpoint,
		SearchIndexURL:    *searchIndexURL,
		ProbeTimeout:      *probeTimeout,
		IngestTimeout:     *ingestTimeout,
		DiscoveryWorkers:  *discoveryWorkers,
		IngesterAuthToken: *ingesterAuthToken,
	}, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	// Connection to database
	db, err := pg.New(ctx, config.DbConnection)
	if err != nil {
		return fmt.Errorf("pg.New: %w", err)
	}

	fed := federation.Federation{
		Backend:          db,
		Directory:        stacindex.Directory{URL: config.DirectoryURL},
		SearchIndex:      searchindex.Client{Endpoint: config.SearchIndexURL},
		HTTPTimeout:      config.ProbeTimeout,
		DiscoveryWorkers: config.DiscoveryWorkers,
	}
	dispatcher := ingestion.Dispatcher{
		Backend:   db,
		Endpoint:  config.IngesterEndpoint,
		TargetURL: config.TargetStacURL,
		AuthToken: config.IngesterAuthToken,
		Timeout:   config.IngestTimeout,
	}
	defer dispatcher.Join()

	// New handler
	router := fed.NewHandler()
	dispatcher.Handler(router.(*mux.Router))
	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + config.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(router),
	}

	log.Logger(ctx).Debug("federator starts on :" + config.AppPort)
	return s.ListenAndServe()
}
