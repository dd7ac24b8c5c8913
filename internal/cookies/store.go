package cookies

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openxiino/dataserver/internal/db"
)

// Store persists downstream cookie ledgers to SQLite so sessions survive a
// proxy restart. A session's rows are rewritten whole on change; the ledger
// is at most 40 rows.
type Store struct {
	db *db.DB
}

// NewStore creates a cookie store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// SaveSession replaces the stored rows for the session.
func (st *Store) SaveSession(sessionID string, cookies map[cookieKey]*downstreamCookie) error {
	tx, err := st.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning cookie save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cookies WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clearing session cookies: %w", err)
	}
	for _, c := range cookies {
		var expires any
		if !c.expires.IsZero() {
			expires = c.expires.UTC()
		}
		_, err := tx.Exec(
			`INSERT INTO cookies (id, session_id, name, value, domain, path, expires, secure, set_at, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), sessionID, c.key.name, c.value, c.key.domain, c.key.path,
			expires, boolInt(c.secure), time.Now().UTC(), c.seq,
		)
		if err != nil {
			return fmt.Errorf("inserting cookie: %w", err)
		}
	}
	return tx.Commit()
}

// LoadSession fills the session's downstream ledger from stored rows.
func (st *Store) LoadSession(s *Session) error {
	rows, err := st.db.Query(
		`SELECT name, value, domain, path, expires, secure, seq FROM cookies WHERE session_id = ?`,
		s.id,
	)
	if err != nil {
		return fmt.Errorf("loading session cookies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c downstreamCookie
		var expires sql.NullTime
		var secure int
		if err := rows.Scan(&c.key.name, &c.value, &c.key.domain, &c.key.path, &expires, &secure, &c.seq); err != nil {
			return fmt.Errorf("scanning cookie: %w", err)
		}
		if expires.Valid {
			c.expires = expires.Time
		}
		c.secure = secure != 0
		s.downstream[c.key] = &c
		if c.seq > s.seq {
			s.seq = c.seq
		}
	}
	return rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
