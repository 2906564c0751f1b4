package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/joescharf/pomo/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// The CLI and the daemon open the same file; WAL plus a busy timeout lets
// them interleave without a lock of their own.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection per process serializes writes within the process;
	// other processes are handled by busy_timeout below.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NewID generates a new ULID string.
func NewID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Timer ---

func (s *SQLiteStore) LoadTimer(ctx context.Context) (models.TimerState, bool, error) {
	var (
		st        models.TimerState
		mode      string
		deadline  sql.NullInt64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT mode, cycle_id, deadline_ms, is_paused, remaining_on_pause, work_seconds, rest_seconds, writer, updated_at_ms
		FROM timer_state WHERE key = ?`, models.TimerKey,
	).Scan(&mode, &st.CycleID, &deadline, &st.IsPaused, &st.RemainingOnPause,
		&st.Settings.WorkSeconds, &st.Settings.RestSeconds, &st.Writer, &updatedAt)
	if err == sql.ErrNoRows {
		return models.IdleState(), false, nil
	}
	if err != nil {
		return models.IdleState(), false, fmt.Errorf("load timer: %w", err)
	}

	st.Mode = models.Mode(mode)
	st.Deadline = timePtr(deadline)
	st.UpdatedAt = fromMillis(updatedAt)
	return st, true, nil
}

// SaveTimer replaces the timer record unless a newer snapshot is already stored.
func (s *SQLiteStore) SaveTimer(ctx context.Context, st models.TimerState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timer_state (key, mode, cycle_id, deadline_ms, is_paused, remaining_on_pause, work_seconds, rest_seconds, writer, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			mode=excluded.mode, cycle_id=excluded.cycle_id, deadline_ms=excluded.deadline_ms,
			is_paused=excluded.is_paused, remaining_on_pause=excluded.remaining_on_pause,
			work_seconds=excluded.work_seconds, rest_seconds=excluded.rest_seconds,
			writer=excluded.writer, updated_at_ms=excluded.updated_at_ms
		WHERE excluded.updated_at_ms >= timer_state.updated_at_ms`,
		models.TimerKey, string(st.Mode), st.CycleID, nullMillis(st.Deadline), boolToInt(st.IsPaused),
		st.RemainingOnPause, st.Settings.WorkSeconds, st.Settings.RestSeconds, st.Writer, toMillis(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save timer: %w", err)
	}
	return nil
}

// --- Completed cycles ---

func (s *SQLiteStore) RecordCompletedCycle(ctx context.Context, cycleID string, at time.Time) (bool, error) {
	if cycleID == "" {
		return false, nil
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO completed_cycles (cycle_id, completed_at_ms) VALUES (?, ?)`,
		cycleID, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("record completed cycle: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (s *SQLiteStore) CountCompletedCycles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM completed_cycles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count completed cycles: %w", err)
	}
	return n, nil
}

// --- Reminders ---

func (s *SQLiteStore) ReplaceReminders(ctx context.Context, reminders []models.ReminderSpec) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders`); err != nil {
		return fmt.Errorf("clear reminders: %w", err)
	}
	for i, r := range reminders {
		days, err := json.Marshal(r.Weekdays)
		if err != nil {
			return fmt.Errorf("encode weekdays for %s: %w", r.Key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reminders (key, label, time_of_day, weekdays, position) VALUES (?, ?, ?, ?, ?)`,
			r.Key, r.Label, r.TimeOfDay, string(days), i,
		); err != nil {
			return fmt.Errorf("insert reminder %s: %w", r.Key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListReminders(ctx context.Context) ([]models.ReminderSpec, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, label, time_of_day, weekdays FROM reminders ORDER BY position, key`)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reminders []models.ReminderSpec
	for rows.Next() {
		var r models.ReminderSpec
		var days string
		if err := rows.Scan(&r.Key, &r.Label, &r.TimeOfDay, &days); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		if err := json.Unmarshal([]byte(days), &r.Weekdays); err != nil {
			log.Warn().Err(err).Str("key", r.Key).Msg("Skipping reminder with unreadable weekdays")
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// --- Focus sessions ---

var errCorruptSession = errors.New("corrupt focus session")

const focusColumns = `id, start_ms, end_ms, total_time, interruptions, is_active`

func scanFocusSession(scan func(dest ...any) error) (*models.FocusSession, error) {
	var (
		fs      models.FocusSession
		startMs int64
		endMs   sql.NullInt64
		ints    string
	)
	if err := scan(&fs.ID, &startMs, &endMs, &fs.TotalTime, &ints, &fs.IsActive); err != nil {
		return nil, err
	}
	fs.StartTime = fromMillis(startMs)
	fs.EndTime = timePtr(endMs)
	if err := json.Unmarshal([]byte(ints), &fs.Interruptions); err != nil {
		return nil, fmt.Errorf("%w: interruptions for %s: %v", errCorruptSession, fs.ID, err)
	}
	return &fs, nil
}

func (s *SQLiteStore) LoadActiveFocusSession(ctx context.Context) (*models.FocusSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+focusColumns+` FROM focus_sessions WHERE is_active = 1 ORDER BY start_ms DESC LIMIT 1`)
	fs, err := scanFocusSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if errors.Is(err, errCorruptSession) {
		log.Warn().Err(err).Msg("Ignoring unreadable active focus session")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active focus session: %w", err)
	}
	return fs, nil
}

func (s *SQLiteStore) SaveFocusSession(ctx context.Context, fs *models.FocusSession) error {
	if fs.ID == "" {
		fs.ID = NewID()
	}
	interruptions := fs.Interruptions
	if interruptions == nil {
		interruptions = []models.Interruption{}
	}
	ints, err := json.Marshal(interruptions)
	if err != nil {
		return fmt.Errorf("encode interruptions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO focus_sessions (`+focusColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_ms=excluded.start_ms, end_ms=excluded.end_ms, total_time=excluded.total_time,
			interruptions=excluded.interruptions, is_active=excluded.is_active`,
		fs.ID, toMillis(fs.StartTime), nullMillis(fs.EndTime), fs.TotalTime, string(ints), boolToInt(fs.IsActive),
	)
	if err != nil {
		return fmt.Errorf("save focus session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteFocusSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM focus_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete focus session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("focus session %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListFocusSessions returns completed sessions, newest first.
func (s *SQLiteStore) ListFocusSessions(ctx context.Context, limit int) ([]*models.FocusSession, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+focusColumns+` FROM focus_sessions WHERE is_active = 0 ORDER BY start_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list focus sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.FocusSession
	for rows.Next() {
		fs, err := scanFocusSession(rows.Scan)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping unreadable focus session")
			continue
		}
		sessions = append(sessions, fs)
	}
	return sessions, rows.Err()
}

// TrimFocusHistory evicts the oldest completed sessions beyond keep.
func (s *SQLiteStore) TrimFocusHistory(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM focus_sessions WHERE is_active = 0 AND id NOT IN (
			SELECT id FROM focus_sessions WHERE is_active = 0 ORDER BY start_ms DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("trim focus history: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) LoadFocusStats(ctx context.Context) (models.FocusStats, error) {
	var st models.FocusStats
	err := s.db.QueryRowContext(ctx,
		`SELECT total_focus_time, total_interruptions, longest_streak, last_session_seconds,
			sessions_completed, average_session_length, day_streak, last_session_day
		FROM focus_stats WHERE id = 1`,
	).Scan(&st.TotalFocusTime, &st.TotalInterruptions, &st.LongestStreak, &st.LastSessionSeconds,
		&st.SessionsCompleted, &st.AverageSessionLength, &st.DayStreak, &st.LastSessionDay)
	if err == sql.ErrNoRows {
		return models.FocusStats{}, nil
	}
	if err != nil {
		return models.FocusStats{}, fmt.Errorf("load focus stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) SaveFocusStats(ctx context.Context, st models.FocusStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO focus_stats (id, total_focus_time, total_interruptions, longest_streak, last_session_seconds,
			sessions_completed, average_session_length, day_streak, last_session_day)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_focus_time=excluded.total_focus_time, total_interruptions=excluded.total_interruptions,
			longest_streak=excluded.longest_streak, last_session_seconds=excluded.last_session_seconds,
			sessions_completed=excluded.sessions_completed, average_session_length=excluded.average_session_length,
			day_streak=excluded.day_streak, last_session_day=excluded.last_session_day`,
		st.TotalFocusTime, st.TotalInterruptions, st.LongestStreak, st.LastSessionSeconds,
		st.SessionsCompleted, st.AverageSessionLength, st.DayStreak, st.LastSessionDay,
	)
	if err != nil {
		return fmt.Errorf("save focus stats: %w", err)
	}
	return nil
}

// --- Notification dedup ---

// ClaimNotification is a single upsert so two processes racing on the same
// key cannot both win.
func (s *SQLiteStore) ClaimNotification(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_dedup (key, last_fired_at_ms) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET last_fired_at_ms=excluded.last_fired_at_ms
		WHERE excluded.last_fired_at_ms - notification_dedup.last_fired_at_ms >= ?`,
		key, toMillis(now), window.Milliseconds(),
	)
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (s *SQLiteStore) PurgeNotifications(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_dedup WHERE last_fired_at_ms < ?`, toMillis(olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) ListDedupEntries(ctx context.Context) ([]models.DedupEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, last_fired_at_ms FROM notification_dedup ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list dedup entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []models.DedupEntry
	for rows.Next() {
		var e models.DedupEntry
		var ms int64
		if err := rows.Scan(&e.Key, &ms); err != nil {
			return nil, fmt.Errorf("scan dedup entry: %w", err)
		}
		e.LastFiredAt = fromMillis(ms)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
