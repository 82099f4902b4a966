package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/timely"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteDataflow stores d under its name at logical sequence seq.
//
// The stored definition is the canonical JSON of d without its as-of; a
// view's as-of, if set, is appended to the as-of history in the same
// transaction. Writing a definition identical to the stored one is a no-op
// (apart from recording a tighter as-of). A different definition under the
// same name returns ErrCodeConflict.
func (s *Store) WriteDataflow(ctx context.Context, seq int64, d dataflow.Dataflow) error {
	if sink, ok := d.(dataflow.Sink); ok {
		if _, isTail := sink.Connector().(dataflow.TailSinkConnector); isTail {
			return newError(ErrCodeNotPersistable, d.Name(), "tail sinks deliver to a live channel")
		}
	}

	var asOf *timely.Frontier
	if v, ok := d.(dataflow.View); ok {
		asOf = v.AsOf()
		d = v.WithAsOf(nil)
	}

	def, fingerprint, err := encodeDefinition(d)
	if err != nil {
		return fmt.Errorf("write dataflow %q: %w", d.Name(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO dataflows (name, kind, definition, fingerprint, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, d.Name(), string(d.Kind()), def, fingerprint, seq)
	if err != nil {
		return fmt.Errorf("write dataflow %q: %w", d.Name(), err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write dataflow %q: %w", d.Name(), err)
	}
	if inserted == 0 {
		var stored string
		err := tx.QueryRowContext(ctx, `
			SELECT fingerprint FROM dataflows WHERE name = ?
		`, d.Name()).Scan(&stored)
		if err != nil {
			return fmt.Errorf("write dataflow %q: %w", d.Name(), err)
		}
		if stored != fingerprint {
			return &Error{
				Code:    ErrCodeConflict,
				Name:    d.Name(),
				Message: fmt.Sprintf("stored fingerprint %s, got %s", short(stored), short(fingerprint)),
			}
		}
	}

	if asOf != nil {
		if err := recordAsOf(ctx, tx, seq, d.Name(), *asOf); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RecordAsOf appends f to the as-of history of the view name. f must
// dominate the latest recorded frontier; recording a frontier equal to the
// latest is a no-op.
func (s *Store) RecordAsOf(ctx context.Context, seq int64, name string, f timely.Frontier) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var kind string
	err = tx.QueryRowContext(ctx, `SELECT kind FROM dataflows WHERE name = ?`, name).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Code: ErrCodeNotFound, Name: name, Err: err}
	}
	if err != nil {
		return fmt.Errorf("record as-of %q: %w", name, err)
	}
	if dataflow.Kind(kind) != dataflow.KindView {
		return newError(ErrCodeNotView, name, "%s has no as-of", kind)
	}

	if err := recordAsOf(ctx, tx, seq, name, f); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func recordAsOf(ctx context.Context, q queryer, seq int64, name string, f timely.Frontier) error {
	latest, err := latestAsOf(ctx, q, name)
	if err != nil {
		return err
	}
	if latest != nil && latest.Equal(f) {
		return nil
	}
	if _, err := timely.Tighten(latest, f); err != nil {
		return &dataflow.Error{Code: dataflow.ErrCodeAsOfLoosened, Name: name, Err: err}
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("record as-of %q: %w", name, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO as_of_history (name, frontier, seq)
		VALUES (?, ?, ?)
	`, name, string(data), seq)
	if err != nil {
		return fmt.Errorf("record as-of %q: %w", name, err)
	}
	return nil
}

// DeleteDataflow removes the dataflow and its as-of history. Dependency
// checks are the catalog's concern; the store deletes unconditionally.
func (s *Store) DeleteDataflow(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dataflows WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete dataflow %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete dataflow %q: %w", name, err)
	}
	if n == 0 {
		return &Error{Code: ErrCodeNotFound, Name: name, Err: sql.ErrNoRows}
	}
	return nil
}

// encodeDefinition returns the canonical JSON of d and its fingerprint.
func encodeDefinition(d dataflow.Dataflow) (string, string, error) {
	data, err := dataflow.Marshal(d)
	if err != nil {
		return "", "", err
	}
	canonical, err := repr.Canonicalize(data)
	if err != nil {
		return "", "", fmt.Errorf("canonicalize: %w", err)
	}
	fingerprint, err := dataflow.Fingerprint(d)
	if err != nil {
		return "", "", err
	}
	return string(canonical), fingerprint, nil
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
