package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.PositionRepository, ports.TradeResultRepository
// and ports.RiskBudgetRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/risk_bot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the signal and monitoring paths.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, err, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, err, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL DEFAULT NULL,
		size REAL NOT NULL,
		leverage INTEGER NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		risk_pct REAL NOT NULL,
		entry_time TIMESTAMP DEFAULT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		status TEXT NOT NULL,
		pnl REAL DEFAULT NULL,
		pnl_pct REAL DEFAULT NULL,
		close_reason TEXT DEFAULT NULL,
		trailing_state TEXT NOT NULL,
		trailing_trigger REAL DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id INTEGER NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		pnl REAL NOT NULL,
		pnl_pct REAL NOT NULL,
		close_reason TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		closed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS risk_budget (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		budget TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_positions_symbol_status ON positions (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_trade_results_closed_at ON trade_results (closed_at);
	CREATE INDEX IF NOT EXISTS idx_trade_results_symbol_closed_at ON trade_results (symbol, closed_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- PositionRepository Implementation ---

// CreatePosition saves a new position and returns its assigned ID.
func (r *Repository) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (symbol, direction, entry_price, size, leverage, stop_loss,
	                       take_profit, risk_pct, entry_time, status, trailing_state)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		pos.Symbol, string(pos.Direction), pos.EntryPrice, pos.Size, pos.Leverage, pos.StopLoss,
		pos.TakeProfit, pos.RiskPct, nullableTime(pos.EntryTime), string(pos.Status), string(pos.Trailing))
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for symbol %s: %w: %w", pos.Symbol, err, ports.ErrUpdateFailed)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.Symbol, err)
	}
	pos.ID = id
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "symbol": pos.Symbol})
	return id, nil
}

// UpdatePosition modifies an existing position based on its ID.
func (r *Repository) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET entry_price = ?, exit_price = ?, size = ?, leverage = ?, stop_loss = ?,
	    take_profit = ?, risk_pct = ?, entry_time = ?, exit_time = ?, status = ?,
	    pnl = ?, pnl_pct = ?, close_reason = ?, trailing_state = ?, trailing_trigger = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		pos.EntryPrice, pos.ExitPrice, pos.Size, pos.Leverage, pos.StopLoss,
		pos.TakeProfit, pos.RiskPct, nullableTime(pos.EntryTime), nullableTime(pos.ExitTime), string(pos.Status),
		pos.PNL, pos.PNLPct, string(pos.CloseReason), string(pos.Trailing), pos.TrailingTrigger,
		pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w: %w", pos.ID, err, ports.ErrUpdateFailed)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for update: %w", pos.ID, ports.ErrNotFound)
	}
	return nil
}

// DeletePosition removes a position row, used when a pending reservation is
// rolled back.
func (r *Repository) DeletePosition(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete position ID %d: %w: %w", id, err, ports.ErrUpdateFailed)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for delete position ID %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for delete: %w", id, ports.ErrNotFound)
	}
	return nil
}

// FindActive retrieves all pending and open positions.
func (r *Repository) FindActive(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT id, symbol, direction, entry_price, COALESCE(exit_price, 0), size, leverage,
	       stop_loss, take_profit, risk_pct, entry_time, exit_time, status,
	       COALESCE(pnl, 0), COALESCE(pnl_pct, 0), COALESCE(close_reason, ''),
	       trailing_state, COALESCE(trailing_trigger, 0)
	FROM positions
	WHERE status IN (?, ?)
	ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, string(domain.StatusPending), string(domain.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to query active positions: %w: %w", err, ports.ErrQueryFailed)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindActive: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// FindPositionByID retrieves a position by its unique ID.
func (r *Repository) FindPositionByID(ctx context.Context, id int64) (*domain.Position, error) {
	const query = `
	SELECT id, symbol, direction, entry_price, COALESCE(exit_price, 0), size, leverage,
	       stop_loss, take_profit, risk_pct, entry_time, exit_time, status,
	       COALESCE(pnl, 0), COALESCE(pnl_pct, 0), COALESCE(close_reason, ''),
	       trailing_state, COALESCE(trailing_trigger, 0)
	FROM positions
	WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position by ID %d: %w: %w", id, err, ports.ErrQueryFailed)
	}
	return pos, nil
}

// --- TradeResultRepository Implementation ---

// AppendResult saves a new trade result to the append-only log.
func (r *Repository) AppendResult(ctx context.Context, result *domain.TradeResult) (int64, error) {
	const query = `
	INSERT INTO trade_results (position_id, symbol, direction, pnl, pnl_pct, close_reason, duration_ns, closed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var positionID sql.NullInt64
	if result.PositionID != 0 {
		positionID = sql.NullInt64{Int64: result.PositionID, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query,
		positionID, result.Symbol, string(result.Direction), result.PNL, result.PNLPct,
		string(result.CloseReason), result.Duration.Nanoseconds(), result.ClosedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade result for symbol %s: %w: %w", result.Symbol, err, ports.ErrUpdateFailed)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade result %s: %w", result.Symbol, err)
	}
	result.ID = id
	r.logger.Debug(ctx, "Trade result appended", map[string]interface{}{"resultID": id, "symbol": result.Symbol, "pnl": result.PNL})
	return id, nil
}

// RecentResults retrieves the most recent trade results in chronological
// order. Pass limit <= 0 for the full history.
func (r *Repository) RecentResults(ctx context.Context, limit int) ([]*domain.TradeResult, error) {
	query := `
	SELECT id, position_id, symbol, direction, pnl, pnl_pct, close_reason, duration_ns, closed_at
	FROM trade_results ORDER BY closed_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	results, err := r.queryResults(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trade results: %w: %w", err, ports.ErrQueryFailed)
	}
	reverse(results)
	return results, nil
}

// ResultsBySymbol retrieves the most recent results for one symbol in
// chronological order.
func (r *Repository) ResultsBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeResult, error) {
	query := `
	SELECT id, position_id, symbol, direction, pnl, pnl_pct, close_reason, duration_ns, closed_at
	FROM trade_results WHERE symbol = ? ORDER BY closed_at DESC, id DESC`
	args := []interface{}{symbol}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	results, err := r.queryResults(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade results for symbol %s: %w: %w", symbol, err, ports.ErrQueryFailed)
	}
	reverse(results)
	return results, nil
}

func (r *Repository) queryResults(ctx context.Context, query string, args ...interface{}) ([]*domain.TradeResult, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.TradeResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// --- RiskBudgetRepository Implementation ---

// LoadBudget retrieves the stored risk budget, or nil, nil when none exists.
func (r *Repository) LoadBudget(ctx context.Context) (*domain.RiskBudget, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT budget FROM risk_budget WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load risk budget: %w: %w", err, ports.ErrQueryFailed)
	}

	budget := &domain.RiskBudget{}
	if err := json.Unmarshal([]byte(raw), budget); err != nil {
		return nil, fmt.Errorf("failed to decode stored risk budget: %w", err)
	}
	return budget, nil
}

// SaveBudget stores the budget, replacing any previous value.
func (r *Repository) SaveBudget(ctx context.Context, budget *domain.RiskBudget) error {
	raw, err := json.Marshal(budget)
	if err != nil {
		return fmt.Errorf("failed to encode risk budget: %w", err)
	}

	const query = `
	INSERT INTO risk_budget (id, budget, updated_at) VALUES (1, ?, ?)
	ON CONFLICT (id) DO UPDATE SET budget = excluded.budget, updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, query, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save risk budget: %w: %w", err, ports.ErrUpdateFailed)
	}
	r.logger.Debug(ctx, "Risk budget saved", map[string]interface{}{"riskPerTrade": budget.RiskPerTrade})
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var direction, status, closeReason, trailing string
	var entryTime, exitTime sql.NullTime
	err := s.Scan(
		&p.ID, &p.Symbol, &direction, &p.EntryPrice, &p.ExitPrice, &p.Size, &p.Leverage,
		&p.StopLoss, &p.TakeProfit, &p.RiskPct, &entryTime, &exitTime, &status,
		&p.PNL, &p.PNLPct, &closeReason, &trailing, &p.TrailingTrigger)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if entryTime.Valid {
		p.EntryTime = entryTime.Time
	}
	if exitTime.Valid {
		p.ExitTime = exitTime.Time
	}
	p.Direction = domain.Direction(direction)
	p.Status = domain.PositionStatus(status)
	p.CloseReason = domain.CloseReason(closeReason)
	p.Trailing = domain.TrailingState(trailing)
	return p, nil
}

func scanResult(s scanner) (*domain.TradeResult, error) {
	tr := &domain.TradeResult{}
	var positionID sql.NullInt64
	var direction, closeReason string
	var durationNs int64
	err := s.Scan(
		&tr.ID, &positionID, &tr.Symbol, &direction, &tr.PNL, &tr.PNLPct,
		&closeReason, &durationNs, &tr.ClosedAt)
	if err != nil {
		return nil, err
	}
	if positionID.Valid {
		tr.PositionID = positionID.Int64
	}
	tr.Direction = domain.Direction(direction)
	tr.CloseReason = domain.CloseReason(closeReason)
	tr.Duration = time.Duration(durationNs)
	return tr, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func reverse(results []*domain.TradeResult) {
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
}
