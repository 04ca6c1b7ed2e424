package stage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/table"
	"github.com/at-bus-load/pkg/atbus/models"
)

const ParquetContentType = "application/vnd.apache.parquet"

var tripsFilePattern = regexp.MustCompile(`^trips_(.+)\.parquet$`)

// Artifact is a staged Parquet object
type Artifact struct {
	Key  models.Key
	Path string
	URI  string
	Rows int
	Size int
}

// ArtifactPath is the deterministic object path of a key:
// {prefix}stops/{date}/stops.parquet or {prefix}trips/{date}/trips_{route}.parquet
func ArtifactPath(prefix string, key models.Key) string {
	var file string
	switch key.Kind {
	case models.KindTrips:
		file = fmt.Sprintf("trips_%s.parquet", key.RouteID)
	default:
		file = fmt.Sprintf("%s.parquet", key.Kind)
	}
	return fmt.Sprintf("%s%s/%s/%s", normalizePrefix(prefix), key.Kind, key.Date, file)
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

type Stager struct {
	store  ObjectStore
	prefix string
	logger logger.Logger
}

func NewStager(store ObjectStore, prefix string, log logger.Logger) *Stager {
	return &Stager{store: store, prefix: prefix, logger: log}
}

func (s *Stager) Store() ObjectStore {
	return s.store
}

// Locate returns the artifact descriptor of a key without touching storage
func (s *Stager) Locate(key models.Key) Artifact {
	path := ArtifactPath(s.prefix, key)
	return Artifact{Key: key, Path: path, URI: s.store.URI(path)}
}

// Stage encodes t as Parquet and overwrites the object at the key's path
func (s *Stager) Stage(ctx context.Context, key models.Key, t table.Table) (Artifact, error) {
	art := s.Locate(key)

	if err := key.Validate(); err != nil {
		return art, &StorageError{Op: "stage", Path: art.Path, Err: err}
	}
	if t.Kind() != key.Kind {
		return art, &StorageError{Op: "stage", Path: art.Path,
			Err: fmt.Errorf("table kind %s does not match key kind %s", t.Kind(), key.Kind)}
	}

	data, err := table.Encode(t)
	if err != nil {
		return art, &StorageError{Op: "encode", Path: art.Path, Err: err}
	}

	if err := s.store.Put(ctx, art.Path, data, ParquetContentType); err != nil {
		s.logger.Error("Error uploading data to storage", "uri", art.URI, "error", err)
		return art, &StorageError{Op: "put", Path: art.Path, Err: err}
	}

	art.Rows = t.Len()
	art.Size = len(data)
	s.logger.Info("Successfully uploaded data to storage",
		"uri", art.URI,
		"rows", art.Rows,
		"size_bytes", art.Size)
	return art, nil
}

// Read loads a staged artifact back into a table
func (s *Stager) Read(ctx context.Context, key models.Key) (table.Table, error) {
	art := s.Locate(key)
	data, err := s.store.Get(ctx, art.Path)
	if err != nil {
		return nil, &StorageError{Op: "get", Path: art.Path, Err: err}
	}
	t, err := table.Decode(key.Kind, data)
	if err != nil {
		return nil, &StorageError{Op: "decode", Path: art.Path, Err: err}
	}
	return t, nil
}

// RouteIDs lists the trips artifacts staged for a date and returns their
// route ids in sorted order
func (s *Stager) RouteIDs(ctx context.Context, date string) ([]string, error) {
	prefix := fmt.Sprintf("%s%s/%s/", normalizePrefix(s.prefix), models.KindTrips, date)
	paths, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, &StorageError{Op: "list", Path: prefix, Err: err}
	}

	var ids []string
	for _, p := range paths {
		name := p[strings.LastIndex(p, "/")+1:]
		if m := tripsFilePattern.FindStringSubmatch(name); m != nil {
			ids = append(ids, m[1])
		}
	}
	sort.Strings(ids)
	return ids, nil
}
