package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-bus-load/internal/atapi"
	"github.com/at-bus-load/internal/common/config"
	"github.com/at-bus-load/internal/common/db"
	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/stage"
	"github.com/at-bus-load/internal/validate"
	"github.com/at-bus-load/internal/warehouse"
	"github.com/at-bus-load/pkg/atbus/models"
)

const (
	testDate = "2024-01-15"
	dataset  = "at_bus_bronze"
)

const stopsBody = `{"data": [
  {"type": "stops", "id": "8147-a", "attributes": {"stop_id": "8147-a", "stop_code": "8147", "stop_name": "Albany Station",
   "stop_lat": -36.7266, "stop_lon": 174.7111, "location_type": 0, "wheelchair_boarding": 1}},
  {"type": "stops", "id": "8545-b", "attributes": {"stop_id": "8545-b", "stop_code": "8545", "stop_name": "Constellation Station",
   "stop_lat": -36.7557, "stop_lon": 174.7218, "location_type": 0, "wheelchair_boarding": 1}}
]}`

const tripsBodyFmt = `{"data": [
  {"type": "stoptrips", "id": "trip_%[1]s", "attributes": {"arrival_time": "05:35:00", "departure_time": "05:36:00",
   "direction_id": 1, "drop_off_type": 0, "pickup_type": 0, "route_id": "NX1-203", "service_date": "2024-01-15",
   "shape_id": "shape_001", "stop_headsign": "", "stop_id": "%[1]s", "stop_sequence": 3,
   "trip_headsign": "Hibiscus Coast", "trip_id": "trip_%[1]s", "trip_start_time": "05:20:00"}}
]}`

type recordingNotifier struct {
	mu     sync.Mutex
	events []map[string]string
}

func (n *recordingNotifier) Notify(_ context.Context, _, _ string, fields map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, fields)
	return nil
}

type env struct {
	pipeline *Pipeline
	store    *stage.FileStore
	db       *db.DB
	notifier *recordingNotifier
}

// newEnv wires a pipeline against a fake AT API. failTrips makes the
// stoptrips endpoint of that stop return 500.
func newEnv(t *testing.T, failTrips string) *env {
	t.Helper()
	ctx := context.Background()

	router := httprouter.New()
	router.GET("/gtfs/v3/stops", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		fmt.Fprint(w, stopsBody)
	})
	router.GET("/gtfs/v3/stops/:id/stoptrips", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")
		if id == failTrips {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, tripsBodyFmt, id)
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	apiCfg := config.APIConfig{
		BaseURL:       srv.URL + "/gtfs/v3",
		APIKey:        "key",
		Timeout:       5 * time.Second,
		TripStartHour: 3,
		TripHourRange: 24,
		Retry:         config.RetryConfig{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}
	client, err := atapi.NewClient(apiCfg, logger.Nop())
	require.NoError(t, err)
	extractor := atapi.NewExtractor(client, validate.New(validate.RejectEnvelope, logger.Nop()), apiCfg, logger.Nop())

	dir := t.TempDir()
	store, err := stage.NewFileStore(dir, "pne-open-data")
	require.NoError(t, err)
	stager := stage.NewStager(store, "", logger.Nop())

	database, err := db.Open(ctx, config.WarehouseConfig{
		Backend:    "sqlite",
		SQLitePath: filepath.Join(dir, "warehouse.db"),
	}, logger.Nop())
	require.NoError(t, err)
	wh := warehouse.NewSQL(database, store, logger.Nop())
	t.Cleanup(func() { wh.Close() })

	notifier := &recordingNotifier{}
	p := New(Deps{
		Extractor: extractor,
		Stager:    stager,
		Loader:    warehouse.NewLoader(stager, wh, dataset, logger.Nop()),
		Notifier:  notifier,
		StopCodes: config.DefaultStopCodes,
	}, logger.Nop())
	p.newRunID = func() string { return "run-1" }

	return &env{pipeline: p, store: store, db: database, notifier: notifier}
}

func (e *env) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.Conn().QueryRow("SELECT COUNT(*) FROM "+e.db.QualifiedName(dataset, table)).Scan(&n))
	return n
}

func TestExtractStagesStopsAndTrips(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	report, err := e.pipeline.Extract(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	require.Len(t, report.Runs, 3)
	assert.Len(t, report.InState(Staged), 3)
	assert.Equal(t, []State{Requested, Fetched, Validated, Staged}, report.Runs[0].Path())

	paths, err := e.store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"stops/2024-01-15/stops.parquet",
		"trips/2024-01-15/trips_8147-a.parquet",
		"trips/2024-01-15/trips_8545-b.parquet",
	}, paths)
	assert.Empty(t, e.notifier.events)
}

func TestRunLoadsEveryStagedKey(t *testing.T) {
	e := newEnv(t, "")

	report, err := e.pipeline.Run(context.Background(), testDate)
	require.NoError(t, err)
	assert.Len(t, report.InState(Loaded), 3)

	assert.Equal(t, 2, e.count(t, "stops_2024-01-15"))
	assert.Equal(t, 1, e.count(t, "trips_8147-a_2024-01-15"))
	assert.Equal(t, 1, e.count(t, "trips_8545-b_2024-01-15"))

	rec, err := db.NewLedger(e.db, dataset).Latest(context.Background(), "stops_2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "run-1", rec.RunID)
}

func TestRunTwiceKeepsLatestRowsOnly(t *testing.T) {
	e := newEnv(t, "")

	_, err := e.pipeline.Run(context.Background(), testDate)
	require.NoError(t, err)
	_, err = e.pipeline.Run(context.Background(), testDate)
	require.NoError(t, err)

	assert.Equal(t, 2, e.count(t, "stops_2024-01-15"))
}

func TestSeparateExtractAndLoad(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	_, err := e.pipeline.Extract(ctx, testDate)
	require.NoError(t, err)

	report, err := e.pipeline.Load(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, report.Runs, 3)
	for _, run := range report.Runs {
		assert.Equal(t, []State{Staged, Loaded}, run.Path())
	}
	assert.Equal(t, 2, e.count(t, "stops_2024-01-15"))
}

func TestLoadWithoutExtractFails(t *testing.T) {
	e := newEnv(t, "")

	report, err := e.pipeline.Load(context.Background(), testDate)
	require.Error(t, err)

	var lerr *warehouse.LoadError
	require.True(t, errors.As(err, &lerr))
	assert.True(t, lerr.Missing)
	assert.Equal(t, models.StopsKey(testDate), lerr.Key)
	assert.Len(t, report.InState(Failed), 1)
	require.Len(t, e.notifier.events, 1)
	assert.Equal(t, "load", e.notifier.events[0]["operation"])
}

func TestFailedRouteSkipsLoad(t *testing.T) {
	e := newEnv(t, "8545-b")

	report, err := e.pipeline.Run(context.Background(), testDate)
	require.Error(t, err)

	var terr *atapi.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusInternalServerError, terr.StatusCode)

	assert.Len(t, report.InState(Staged), 2)
	failed := report.InState(Failed)
	require.Len(t, failed, 1)
	assert.Equal(t, "8545-b", failed[0].Key.RouteID)
	assert.Empty(t, report.InState(Loaded))

	require.Len(t, e.notifier.events, 1)
	assert.Equal(t, "1 of 3", e.notifier.events[0]["failed"])
}

func TestConfiguredRouteIDs(t *testing.T) {
	e := newEnv(t, "")
	e.pipeline.deps.RouteIDs = []string{"8147-a"}

	report, err := e.pipeline.Extract(context.Background(), testDate)
	require.NoError(t, err)
	require.Len(t, report.Runs, 2)
	assert.Equal(t, "8147-a", report.Runs[1].Key.RouteID)
}

func TestInvalidDate(t *testing.T) {
	e := newEnv(t, "")

	_, err := e.pipeline.Run(context.Background(), "2024-13-45")
	require.Error(t, err)
	assert.Equal(t, "Invalid date format: 2024-13-45. Please use YYYY-MM-DD format.", err.Error())
}
