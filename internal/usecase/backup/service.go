package backup

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/repository"
)

const (
	defaultBatchSize = 512
	formatVersion    = 1

	TableContentItems = "content_items"
	TableStates       = "learner_content_states"
)

var errNoTablesSelected = errors.New("backup: no tables selected")

// ProgressReporter receives per-table progress callbacks during export.
type ProgressReporter interface {
	StartTable(table string, total int)
	Increment(table string, delta int)
	FinishTable(table string)
}

type noopProgress struct{}

func (noopProgress) StartTable(string, int) {}
func (noopProgress) Increment(string, int)  {}
func (noopProgress) FinishTable(string)     {}

// Service streams learner records and the content catalogue to and from NDJSON.
type Service struct {
	states     repository.LearnerStateRepository
	contents   repository.ContentRepository
	batchSize  int
	schemaHash string
}

type Option func(*Service)

// WithBatchSize sets how many imported rows are buffered before they are written.
func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// NewService constructs a backup service over the given repositories.
func NewService(states repository.LearnerStateRepository, contents repository.ContentRepository, opts ...Option) (*Service, error) {
	if states == nil || contents == nil {
		return nil, errors.New("backup: repositories are required")
	}
	svc := &Service{
		states:     states,
		contents:   contents,
		batchSize:  defaultBatchSize,
		schemaHash: computeSchemaHash(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

type ExportOption func(*exportConfig)

type exportConfig struct {
	tables   []string
	reporter ProgressReporter
}

// WithTables restricts export to the provided table names.
func WithTables(tables []string) ExportOption {
	return func(cfg *exportConfig) {
		if len(tables) == 0 {
			return
		}
		cfg.tables = append([]string{}, tables...)
	}
}

// WithProgressReporter registers a reporter that receives progress callbacks during export.
func WithProgressReporter(reporter ProgressReporter) ExportOption {
	return func(cfg *exportConfig) {
		cfg.reporter = reporter
	}
}

type ImportOption func(*importConfig)

type importConfig struct {
	tables []string
}

// WithImportTables restricts import to the provided table names.
func WithImportTables(tables []string) ImportOption {
	return func(cfg *importConfig) {
		if len(tables) == 0 {
			return
		}
		cfg.tables = append([]string{}, tables...)
	}
}

// ImportSummary counts the rows written per table.
type ImportSummary map[string]int

type record struct {
	Type       string         `json:"type"`
	Version    int            `json:"version,omitempty"`
	ExportedAt *time.Time     `json:"exported_at,omitempty"`
	SchemaHash string         `json:"schema_hash,omitempty"`
	Tables     []string       `json:"tables,omitempty"`
	RowCounts  map[string]int `json:"row_counts,omitempty"`
	Payload    any            `json:"payload,omitempty"`
}

type rawRecord struct {
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	SchemaHash string          `json:"schema_hash"`
	Tables     []string        `json:"tables"`
	Payload    json.RawMessage `json:"payload"`
}

type contentRow struct {
	ID         string  `json:"id"`
	Difficulty float64 `json:"difficulty"`
}

type stateRow struct {
	ID                  string     `json:"id"`
	LearnerID           string     `json:"learner_id"`
	ContentID           string     `json:"content_id"`
	EaseFactor          float64    `json:"ease_factor"`
	CurrentInterval     float64    `json:"current_interval"`
	Repetitions         int        `json:"repetitions"`
	TotalReviews        int        `json:"total_reviews"`
	SuccessCount        int        `json:"success_count"`
	LastReviewed        *time.Time `json:"last_reviewed"`
	NextReview          time.Time  `json:"next_review"`
	LastResponseQuality *int       `json:"last_response_quality"`
	Version             int64      `json:"version"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

var tableRows = map[string]reflect.Type{
	TableContentItems: reflect.TypeOf(contentRow{}),
	TableStates:       reflect.TypeOf(stateRow{}),
}

func (s *Service) Export(ctx context.Context, w io.Writer, opts ...ExportOption) error {
	cfg := exportConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	tables, err := selectTables(cfg.tables)
	if err != nil {
		return err
	}
	reporter := cfg.reporter
	if reporter == nil {
		reporter = noopProgress{}
	}

	var contents []*entity.ContentItem
	counts := make(map[string]int, len(tables))
	for _, name := range tables {
		switch name {
		case TableContentItems:
			contents, err = s.contents.List(ctx)
			if err != nil {
				return fmt.Errorf("list content items: %w", err)
			}
			counts[name] = len(contents)
		case TableStates:
			n, err := s.states.Count(ctx)
			if err != nil {
				return fmt.Errorf("count learner states: %w", err)
			}
			counts[name] = n
		}
	}

	writer := bufio.NewWriter(w)
	defer writer.Flush()

	now := time.Now().UTC()
	meta := record{
		Type:       "meta",
		Version:    formatVersion,
		ExportedAt: &now,
		SchemaHash: s.schemaHash,
		Tables:     tables,
		RowCounts:  counts,
	}
	if err := writeRecord(writer, meta); err != nil {
		return err
	}

	for _, name := range tables {
		reporter.StartTable(name, counts[name])
		switch name {
		case TableContentItems:
			for _, item := range contents {
				if err := writeRecord(writer, record{Type: name, Payload: contentRow{ID: item.ID, Difficulty: item.Difficulty}}); err != nil {
					return err
				}
				reporter.Increment(name, 1)
			}
		case TableStates:
			err := s.states.Walk(ctx, func(st *entity.LearnerContentState) error {
				if err := writeRecord(writer, record{Type: name, Payload: toStateRow(st)}); err != nil {
					return err
				}
				reporter.Increment(name, 1)
				return nil
			})
			if err != nil {
				return fmt.Errorf("export %s: %w", name, err)
			}
		}
		reporter.FinishTable(name)
	}
	return writer.Flush()
}

// Import restores rows from an NDJSON stream produced by Export. Existing rows
// with the same key are overwritten. The meta record must come first.
func (s *Service) Import(ctx context.Context, r io.Reader, opts ...ImportOption) (ImportSummary, error) {
	cfg := importConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	tables, err := selectTables(cfg.tables)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(tables))
	for _, name := range tables {
		wanted[name] = true
	}

	var (
		br       = bufio.NewReader(r)
		metaSeen bool
		lineNo   int
		summary  = make(ImportSummary, len(tables))
		pending  []any
	)
	flush := func() error {
		for _, row := range pending {
			if err := s.applyRow(ctx, row); err != nil {
				return err
			}
		}
		pending = pending[:0]
		return nil
	}

	for {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read backup: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			lineNo++
			var rec rawRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, fmt.Errorf("decode record on line %d: %w", lineNo, err)
			}

			switch {
			case rec.Type == "meta":
				if err := s.checkMeta(rec); err != nil {
					return nil, err
				}
				metaSeen = true
			case !metaSeen:
				return nil, errors.New("backup: missing meta record")
			case wanted[rec.Type]:
				if len(rec.Payload) == 0 {
					return nil, fmt.Errorf("backup: missing payload for table %s", rec.Type)
				}
				row, err := decodeRow(rec.Type, rec.Payload)
				if err != nil {
					return nil, fmt.Errorf("decode %s on line %d: %w", rec.Type, lineNo, err)
				}
				pending = append(pending, row)
				summary[rec.Type]++
				if len(pending) >= s.batchSize {
					if err := flush(); err != nil {
						return nil, err
					}
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}

	if !metaSeen {
		return nil, errors.New("backup: missing meta record")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Service) checkMeta(rec rawRecord) error {
	if rec.Version != formatVersion {
		return fmt.Errorf("backup: unsupported format version %d", rec.Version)
	}
	if rec.SchemaHash != "" && rec.SchemaHash != s.schemaHash {
		return fmt.Errorf("backup: schema hash mismatch")
	}
	return nil
}

func (s *Service) applyRow(ctx context.Context, row any) error {
	switch v := row.(type) {
	case *contentRow:
		if err := s.contents.Save(ctx, &entity.ContentItem{ID: v.ID, Difficulty: v.Difficulty}); err != nil {
			return fmt.Errorf("import content %s: %w", v.ID, err)
		}
	case *stateRow:
		st := fromStateRow(v)
		if err := s.states.Upsert(ctx, st); err != nil {
			return fmt.Errorf("import state %s: %w", st.Key(), err)
		}
	}
	return nil
}

func decodeRow(table string, payload json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	switch table {
	case TableContentItems:
		var row contentRow
		if err := dec.Decode(&row); err != nil {
			return nil, err
		}
		if _, err := entity.ValidateContentID(row.ID); err != nil {
			return nil, err
		}
		if row.Difficulty < entity.MinDifficulty || row.Difficulty > entity.MaxDifficulty {
			return nil, entity.NewValidationError("difficulty", entity.ErrInvalidDifficulty)
		}
		return &row, nil
	case TableStates:
		var row stateRow
		if err := dec.Decode(&row); err != nil {
			return nil, err
		}
		if _, err := entity.ValidateKey(row.LearnerID, row.ContentID); err != nil {
			return nil, err
		}
		if row.ID == "" {
			return nil, fmt.Errorf("missing id")
		}
		if row.SuccessCount > row.TotalReviews || row.TotalReviews < 0 || row.Repetitions < 0 {
			return nil, fmt.Errorf("inconsistent counters")
		}
		if row.LastResponseQuality != nil {
			if err := entity.ValidateQuality(*row.LastResponseQuality); err != nil {
				return nil, err
			}
		}
		return &row, nil
	default:
		return nil, fmt.Errorf("backup: unsupported table %q", table)
	}
}

func toStateRow(st *entity.LearnerContentState) stateRow {
	return stateRow{
		ID:                  st.ID,
		LearnerID:           st.LearnerID,
		ContentID:           st.ContentID,
		EaseFactor:          st.EaseFactor,
		CurrentInterval:     st.CurrentInterval,
		Repetitions:         st.Repetitions,
		TotalReviews:        st.TotalReviews,
		SuccessCount:        st.SuccessCount,
		LastReviewed:        st.LastReviewed,
		NextReview:          st.NextReview.UTC(),
		LastResponseQuality: st.LastResponseQuality,
		Version:             st.Version,
		CreatedAt:           st.CreatedAt.UTC(),
		UpdatedAt:           st.UpdatedAt.UTC(),
	}
}

func fromStateRow(row *stateRow) *entity.LearnerContentState {
	st := &entity.LearnerContentState{
		ID:                  row.ID,
		LearnerID:           strings.TrimSpace(row.LearnerID),
		ContentID:           strings.TrimSpace(row.ContentID),
		EaseFactor:          row.EaseFactor,
		CurrentInterval:     row.CurrentInterval,
		Repetitions:         row.Repetitions,
		TotalReviews:        row.TotalReviews,
		SuccessCount:        row.SuccessCount,
		LastReviewed:        row.LastReviewed,
		NextReview:          row.NextReview.UTC(),
		LastResponseQuality: row.LastResponseQuality,
		Version:             row.Version,
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}
	if st.Version <= 0 {
		st.Version = 1
	}
	return st
}

func selectTables(requested []string) ([]string, error) {
	if len(requested) == 0 {
		// content first so imported states never reference an unknown item
		return []string{TableContentItems, TableStates}, nil
	}
	set := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		n := strings.TrimSpace(strings.ToLower(name))
		if n == "" {
			continue
		}
		if _, ok := tableRows[n]; !ok {
			return nil, fmt.Errorf("backup: unsupported table %q", name)
		}
		set[n] = struct{}{}
	}
	if len(set) == 0 {
		return nil, errNoTablesSelected
	}
	tables := make([]string, 0, len(set))
	for _, name := range []string{TableContentItems, TableStates} {
		if _, ok := set[name]; ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// computeSchemaHash fingerprints the payload columns so a backup taken with a
// different record layout is rejected on import.
func computeSchemaHash() string {
	names := make([]string, 0, len(tableRows))
	for name := range tableRows {
		names = append(names, name)
	}
	sort.Strings(names)

	builder := &strings.Builder{}
	for _, name := range names {
		typ := tableRows[name]
		builder.WriteString(name)
		builder.WriteString("|cols:")
		cols := make([]string, 0, typ.NumField())
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			cols = append(cols, strings.Split(f.Tag.Get("json"), ",")[0]+":"+f.Type.String())
		}
		sort.Strings(cols)
		builder.WriteString(strings.Join(cols, ";"))
		builder.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(builder.String()))
	return fmt.Sprintf("%x", sum[:])
}

func writeRecord(w io.Writer, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return err
	}
	return nil
}
