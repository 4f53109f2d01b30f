package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/toolpath"
	"github.com/zjrosen/millflow/internal/tracing"
)

const tracerName = "github.com/zjrosen/millflow/internal/store"

var (
	// ErrNotFound is returned when no stored toolpath matches.
	ErrNotFound = errors.New("toolpath not found")
	// ErrAmbiguous is returned when an id prefix matches several toolpaths.
	ErrAmbiguous = errors.New("toolpath id prefix is ambiguous")
)

// ListOptions filters List. A zero Limit returns every row.
type ListOptions struct {
	Limit  int
	TaskID string
}

// Repository stores and retrieves generated toolpaths.
type Repository interface {
	// Save persists tp with its moves and machine settings.
	Save(ctx context.Context, tp *toolpath.Toolpath, jobPath string) (Summary, error)
	// List returns summaries, newest first.
	List(ctx context.Context, opts ListOptions) ([]Summary, error)
	// Get rebuilds a stored toolpath.
	Get(ctx context.Context, id uuid.UUID) (*toolpath.Toolpath, Summary, error)
	// Resolve expands a unique id prefix to a full id.
	Resolve(ctx context.Context, prefix string) (uuid.UUID, error)
	// Delete removes a toolpath and its moves.
	Delete(ctx context.Context, id uuid.UUID) error
}

type toolpathRepository struct {
	conn *sql.DB
	now  func() time.Time
}

var _ Repository = (*toolpathRepository)(nil)

func (r *toolpathRepository) Save(ctx context.Context, tp *toolpath.Toolpath, jobPath string) (sum Summary, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, tracing.SpanStoreSave)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String(tracing.AttrTaskID, tp.Name()),
		attribute.Int(tracing.AttrToolpathMoves, tp.Len()),
	)

	row := toRow(tp, jobPath, tracing.TraceID(ctx), r.now())
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(row.args())), ", ")
	//nolint:gosec // G202: column list and placeholders are constants
	if _, err = tx.ExecContext(ctx, `INSERT INTO toolpaths (`+toolpathColumns+`) VALUES (`+placeholders+`)`, row.args()...); err != nil {
		return Summary{}, fmt.Errorf("failed to insert toolpath: %w", err)
	}
	if err = insertMoves(ctx, tx, row.ID, tp.Moves()); err != nil {
		return Summary{}, err
	}
	if err = insertSettings(ctx, tx, row.ID, tp.Filters()); err != nil {
		return Summary{}, err
	}
	if err = tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit save: %w", err)
	}

	log.Info(log.CatStore, "toolpath saved", "id", row.ID, "task", row.TaskID, "moves", row.MoveCount)
	return row.summary()
}

func insertMoves(ctx context.Context, tx *sql.Tx, id string, moves []toolpath.Move) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO toolpath_moves (toolpath_id, seq, kind, x, y, z) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare moves: %w", err)
	}
	defer stmt.Close()
	for i, m := range moves {
		if _, err := stmt.ExecContext(ctx, id, i, int(m.Kind), m.Position.X, m.Position.Y, m.Position.Z); err != nil {
			return fmt.Errorf("failed to insert move %d: %w", i, err)
		}
	}
	return nil
}

func insertSettings(ctx context.Context, tx *sql.Tx, id string, settings []toolpath.MachineSetting) error {
	for i, s := range settings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO toolpath_settings (toolpath_id, seq, key, value) VALUES (?, ?, ?, ?)`,
			id, i, s.Key, s.Value,
		); err != nil {
			return fmt.Errorf("failed to insert setting %q: %w", s.Key, err)
		}
	}
	return nil
}

func (r *toolpathRepository) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	query := `SELECT ` + toolpathColumns + ` FROM toolpaths`
	var args []any
	if opts.TaskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, opts.TaskID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list toolpaths: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		row, err := scanToolpath(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan toolpath: %w", err)
		}
		sum, err := row.summary()
		if err != nil {
			return nil, fmt.Errorf("toolpath %s: %w", row.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (r *toolpathRepository) Get(ctx context.Context, id uuid.UUID) (*toolpath.Toolpath, Summary, error) {
	row, err := scanToolpath(r.conn.QueryRowContext(ctx,
		`SELECT `+toolpathColumns+` FROM toolpaths WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Summary{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, Summary{}, fmt.Errorf("failed to find toolpath: %w", err)
	}
	sum, err := row.summary()
	if err != nil {
		return nil, Summary{}, err
	}

	moves, err := r.moves(ctx, row.ID)
	if err != nil {
		return nil, Summary{}, err
	}
	settings, err := r.settings(ctx, row.ID)
	if err != nil {
		return nil, Summary{}, err
	}

	tp, err := toolpath.New(moves, toolpath.Metadata{
		Name:              sum.TaskID,
		ToolID:            sum.ToolID,
		Speed:             sum.Speed,
		Feedrate:          sum.Feedrate,
		MaterialAllowance: sum.MaterialAllowance,
		SafetyHeight:      sum.SafetyHeight,
		Unit:              sum.Unit,
		Filters:           settings,
	}, toolpath.WithID(sum.ID), toolpath.WithColor(sum.Color))
	if err != nil {
		return nil, Summary{}, fmt.Errorf("rebuild toolpath %s: %w", id, err)
	}
	return tp, sum, nil
}

func (r *toolpathRepository) moves(ctx context.Context, id string) ([]toolpath.Move, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT kind, x, y, z FROM toolpath_moves WHERE toolpath_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load moves: %w", err)
	}
	defer rows.Close()

	var moves []toolpath.Move
	for rows.Next() {
		var kind int
		var p r3.Vec
		if err := rows.Scan(&kind, &p.X, &p.Y, &p.Z); err != nil {
			return nil, fmt.Errorf("failed to scan move: %w", err)
		}
		moves = append(moves, toolpath.Move{Kind: toolpath.MoveKind(kind), Position: p})
	}
	return moves, rows.Err()
}

func (r *toolpathRepository) settings(ctx context.Context, id string) ([]toolpath.MachineSetting, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT key, value FROM toolpath_settings WHERE toolpath_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	var out []toolpath.MachineSetting
	for rows.Next() {
		var s toolpath.MachineSetting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *toolpathRepository) Resolve(ctx context.Context, prefix string) (uuid.UUID, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return uuid.Nil, fmt.Errorf("empty id: %w", ErrNotFound)
	}
	if id, err := uuid.Parse(prefix); err == nil {
		return id, nil
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT id FROM toolpaths WHERE substr(id, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return uuid.Nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return uuid.Nil, err
	}
	switch len(ids) {
	case 0:
		return uuid.Nil, fmt.Errorf("%s: %w", prefix, ErrNotFound)
	case 1:
		return uuid.Parse(ids[0])
	default:
		return uuid.Nil, fmt.Errorf("%s: %w", prefix, ErrAmbiguous)
	}
}

func (r *toolpathRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn.ExecContext(ctx, `DELETE FROM toolpaths WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete toolpath: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	log.Info(log.CatStore, "toolpath deleted", "id", id)
	return nil
}
