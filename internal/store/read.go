package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/timely"
)

// Record describes a stored dataflow without decoding its definition.
type Record struct {
	Name        string
	Kind        dataflow.Kind
	Fingerprint string
	Seq         int64
}

// AsOfRecord is one entry of a view's as-of history.
type AsOfRecord struct {
	Seq      int64
	Frontier timely.Frontier
}

// ReadDataflow decodes the dataflow stored under name. Views carry the
// latest recorded as-of. Returns ErrCodeNotFound (matching sql.ErrNoRows)
// if nothing is stored under name.
func (s *Store) ReadDataflow(ctx context.Context, name string) (dataflow.Dataflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT d.name, d.definition, (
			SELECT h.frontier FROM as_of_history h
			WHERE h.name = d.name
			ORDER BY h.seq DESC
			LIMIT 1
		)
		FROM dataflows d
		WHERE d.name = ?
	`, name)

	var stored, def string
	var asOf sql.NullString
	err := row.Scan(&stored, &def, &asOf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Code: ErrCodeNotFound, Name: name, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("read dataflow %q: %w", name, err)
	}
	return decodeDefinition(stored, def, asOf)
}

// ReadAll decodes every stored dataflow in registration order.
// Results ordered by seq ASC, name ASC.
func (s *Store) ReadAll(ctx context.Context) ([]dataflow.Dataflow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.name, d.definition, (
			SELECT h.frontier FROM as_of_history h
			WHERE h.name = d.name
			ORDER BY h.seq DESC
			LIMIT 1
		)
		FROM dataflows d
		ORDER BY d.seq ASC, d.name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all dataflows: %w", err)
	}
	defer rows.Close()

	dataflows := []dataflow.Dataflow{}
	for rows.Next() {
		var name, def string
		var asOf sql.NullString
		if err := rows.Scan(&name, &def, &asOf); err != nil {
			return nil, fmt.Errorf("scan dataflow: %w", err)
		}
		d, err := decodeDefinition(name, def, asOf)
		if err != nil {
			return nil, err
		}
		dataflows = append(dataflows, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataflows: %w", err)
	}
	return dataflows, nil
}

// List returns a record per stored dataflow, ordered by seq ASC, name ASC.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, fingerprint, seq
		FROM dataflows
		ORDER BY seq ASC, name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query dataflow records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var kind string
		if err := rows.Scan(&rec.Name, &kind, &rec.Fingerprint, &rec.Seq); err != nil {
			return nil, fmt.Errorf("scan dataflow record: %w", err)
		}
		rec.Kind = dataflow.Kind(kind)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataflow records: %w", err)
	}
	return records, nil
}

// AsOfHistory returns the recorded as-of frontiers of name, oldest first.
// A name with no history returns an empty slice.
func (s *Store) AsOfHistory(ctx context.Context, name string) ([]AsOfRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, frontier
		FROM as_of_history
		WHERE name = ?
		ORDER BY seq ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query as-of history: %w", err)
	}
	defer rows.Close()

	history := []AsOfRecord{}
	for rows.Next() {
		var rec AsOfRecord
		var data string
		if err := rows.Scan(&rec.Seq, &data); err != nil {
			return nil, fmt.Errorf("scan as-of history: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &rec.Frontier); err != nil {
			return nil, fmt.Errorf("decode as-of of %q: %w", name, err)
		}
		history = append(history, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate as-of history: %w", err)
	}
	return history, nil
}

// LastSeq returns the highest seq number used in the store, or 0 for an
// empty store. Used to resume the logical clock after reopening.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			(SELECT COALESCE(MAX(seq), 0) FROM dataflows),
			(SELECT COALESCE(MAX(seq), 0) FROM as_of_history)
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

func latestAsOf(ctx context.Context, q queryer, name string) (*timely.Frontier, error) {
	var data string
	err := q.QueryRowContext(ctx, `
		SELECT frontier FROM as_of_history
		WHERE name = ?
		ORDER BY seq DESC
		LIMIT 1
	`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read as-of of %q: %w", name, err)
	}
	var f timely.Frontier
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, fmt.Errorf("decode as-of of %q: %w", name, err)
	}
	return &f, nil
}

// decodeDefinition rebuilds a dataflow from its stored JSON. Stored
// definitions never contain tail sinks, so no tail registry is needed.
func decodeDefinition(name, def string, asOf sql.NullString) (dataflow.Dataflow, error) {
	d, err := dataflow.Unmarshal([]byte(def), nil)
	if err != nil {
		return nil, fmt.Errorf("decode dataflow %q: %w", name, err)
	}
	v, ok := d.(dataflow.View)
	if !ok || !asOf.Valid {
		return d, nil
	}
	var f timely.Frontier
	if err := json.Unmarshal([]byte(asOf.String), &f); err != nil {
		return nil, fmt.Errorf("decode as-of of %q: %w", name, err)
	}
	return v.WithAsOf(&f), nil
}
