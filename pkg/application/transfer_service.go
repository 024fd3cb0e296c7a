package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

// Only the top level is checked; inner objects are decoded leniently.
const snapshotSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array"
}`

var snapshotSchemaLoader = gojsonschema.NewStringLoader(snapshotSchemaJSON)

// ErrNotArray is wrapped in the ParseError returned for well-formed JSON
// that is not a roadmap array.
var ErrNotArray = errors.New("import file is not a roadmap array")

// TransferService moves snapshots in and out as JSON backups.
type TransferService struct {
	logger *slog.Logger
}

func NewTransferService(logger *slog.Logger) *TransferService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransferService{logger: logger}
}

// ExportFilename is the suggested backup name for the given day.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("roadmap-backup-%s.json", now.Format("2006-01-02"))
}

// Export writes the snapshot as indented JSON.
func (s *TransferService) Export(w io.Writer, snap roadmap.Snapshot) error {
	data, err := roadmap.EncodeIndent(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// Import reads a backup. The result is meant for SyncController.Replace.
func (s *TransferService) Import(source string, r io.Reader) (roadmap.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	result, err := gojsonschema.Validate(snapshotSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &roadmap.ParseError{Source: source, Err: err}
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &roadmap.ParseError{
			Source: source,
			Err:    fmt.Errorf("%w: %s", ErrNotArray, strings.Join(problems, "; ")),
		}
	}

	var snap roadmap.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, &roadmap.ParseError{Source: source, Err: err}
		}
		s.logger.Warn("import contains mistyped fields, keeping what decoded", "source", source, "err", err)
	}
	if snap == nil {
		snap = roadmap.Snapshot{}
	}

	if err := snap.Validate(); err != nil {
		s.logger.Warn("imported roadmap has problems", "source", source, "err", err)
	}
	s.logger.Info("imported roadmap", "source", source, "tasks", len(snap))
	return snap, nil
}
