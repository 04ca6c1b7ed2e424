package warehouse

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-bus-load/internal/common/config"
	"github.com/at-bus-load/internal/common/db"
	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/stage"
	"github.com/at-bus-load/internal/table"
	"github.com/at-bus-load/pkg/atbus/models"
)

const testDate = "2024-01-15"

type fixture struct {
	db     *db.DB
	stager *stage.Stager
	loader *Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := stage.NewFileStore(dir, "bucket")
	require.NoError(t, err)

	database, err := db.Open(ctx, config.WarehouseConfig{
		Backend:    "sqlite",
		SQLitePath: filepath.Join(dir, "warehouse.db"),
	}, logger.Nop())
	require.NoError(t, err)

	wh := NewSQL(database, store, logger.Nop())
	t.Cleanup(func() { wh.Close() })

	stager := stage.NewStager(store, "", logger.Nop())
	return &fixture{
		db:     database,
		stager: stager,
		loader: NewLoader(stager, wh, "at_bus_bronze", logger.Nop()),
	}
}

func stops(codes ...string) *table.Stops {
	days, _ := table.DaysSinceEpoch(testDate)
	t := &table.Stops{}
	for _, c := range codes {
		t.Rows = append(t.Rows, table.StopRow{
			Type: "stops", ID: c + "-id", StopID: c + "-id", StopCode: c,
			StopName: "Stop " + c, StopLat: -36.85, StopLon: 174.76,
			APIDateIngestion: days,
		})
	}
	return t
}

func trips(route string, n int) *table.Trips {
	days, _ := table.DaysSinceEpoch(testDate)
	t := &table.Trips{}
	for i := 0; i < n; i++ {
		t.Rows = append(t.Rows, table.TripRow{
			Type: "stoptrips", ID: "trip", ArrivalTime: "24:10:00", DepartureTime: "24:11:00",
			RouteID: route, ServiceDate: testDate, StopID: route, StopSequence: int64(i + 1),
			TripID: "trip", TripStartTime: "23:55:00", APIDateIngestion: days,
		})
	}
	return t
}

func (f *fixture) count(t *testing.T, ref TableRef) int {
	t.Helper()
	var n int
	err := f.db.Conn().QueryRow("SELECT COUNT(*) FROM " + f.db.QualifiedName(ref.Dataset, ref.Table)).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestTableFor(t *testing.T) {
	assert.Equal(t, "at_bus_bronze.stops_2024-01-15", TableFor("at_bus_bronze", models.StopsKey(testDate)).String())
	assert.Equal(t, "at_bus_bronze.trips_8147-id_2024-01-15", TableFor("at_bus_bronze", models.TripsKey(testDate, "8147-id")).String())
}

func TestLoadStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := models.StopsKey(testDate)

	_, err := f.stager.Stage(ctx, key, stops("8147", "8545"))
	require.NoError(t, err)

	res, err := f.loader.Load(WithRunID(ctx, "run-1"), key)
	require.NoError(t, err)
	assert.Equal(t, "at_bus_bronze.stops_2024-01-15", res.Table.String())
	assert.EqualValues(t, 2, res.Rows)
	assert.Equal(t, 2, f.count(t, res.Table))

	var date string
	require.NoError(t, f.db.Conn().QueryRow(
		"SELECT api_date_ingestion FROM "+f.db.QualifiedName("at_bus_bronze", "stops_2024-01-15")+" LIMIT 1").Scan(&date))
	assert.Contains(t, date, testDate)

	rec, err := db.NewLedger(f.db, "at_bus_bronze").Latest(ctx, "stops_2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "run-1", rec.RunID)
	assert.EqualValues(t, 2, rec.Rows)
}

func TestLoadIsWriteTruncate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := models.StopsKey(testDate)

	_, err := f.stager.Stage(ctx, key, stops("8147", "8545", "7149"))
	require.NoError(t, err)
	_, err = f.loader.Load(ctx, key)
	require.NoError(t, err)

	_, err = f.stager.Stage(ctx, key, stops("8331"))
	require.NoError(t, err)
	res, err := f.loader.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t, res.Table))

	// loading the same artifact twice leaves the same contents
	res, err = f.loader.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t, res.Table))
}

func TestLoadMissingArtifact(t *testing.T) {
	f := newFixture(t)

	_, err := f.loader.Load(context.Background(), models.StopsKey(testDate))
	require.Error(t, err)

	var lerr *LoadError
	require.True(t, errors.As(err, &lerr))
	assert.True(t, lerr.Missing)
	assert.Equal(t, "at_bus_bronze.stops_2024-01-15", lerr.Table.String())
	assert.True(t, errors.Is(err, stage.ErrNotExist))
}

func TestLoadInvalidKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.loader.Load(context.Background(), models.StopsKey("2024/01/15"))
	var lerr *LoadError
	require.True(t, errors.As(err, &lerr))
	assert.False(t, lerr.Missing)
}

func TestLoadCorruptArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := models.StopsKey(testDate)

	require.NoError(t, f.stager.Store().Put(ctx, stage.ArtifactPath("", key), []byte("not parquet"), stage.ParquetContentType))

	_, err := f.loader.Load(ctx, key)
	var lerr *LoadError
	require.True(t, errors.As(err, &lerr))
	assert.False(t, lerr.Missing)
}

func TestLoadDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.stager.Stage(ctx, models.StopsKey(testDate), stops("8147", "8545"))
	require.NoError(t, err)
	for _, route := range []string{"8147-id", "8545-id"} {
		_, err := f.stager.Stage(ctx, models.TripsKey(testDate, route), trips(route, 3))
		require.NoError(t, err)
	}

	results, err := f.loader.LoadDate(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "stops_2024-01-15", results[0].Table.Table)
	assert.Equal(t, "trips_8147-id_2024-01-15", results[1].Table.Table)
	assert.Equal(t, "trips_8545-id_2024-01-15", results[2].Table.Table)
	assert.Equal(t, 3, f.count(t, results[2].Table))
}

func TestLoadDateMissingStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.stager.Stage(ctx, models.TripsKey(testDate, "R1"), trips("R1", 2))
	require.NoError(t, err)

	results, err := f.loader.LoadDate(ctx, testDate)
	require.Error(t, err)
	assert.Len(t, results, 1)

	var lerr *LoadError
	require.True(t, errors.As(err, &lerr))
	assert.True(t, lerr.Missing)
}

func TestLoadDateRejectsBadDate(t *testing.T) {
	f := newFixture(t)
	_, err := f.loader.LoadDate(context.Background(), "15-01-2024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid date format: 15-01-2024")
}

func TestBuildInsertQuery(t *testing.T) {
	b := &batchInserter{
		tableName:  `"t"`,
		columns:    []string{`"a"`, `"b"`},
		fieldCount: 2,
		valueCount: 2,
	}
	assert.Equal(t, `INSERT INTO "t" ("a", "b") VALUES ($1, $2), ($3, $4)`, b.buildInsertQuery())
}
