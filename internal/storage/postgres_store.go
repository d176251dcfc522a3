package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/example/ride-sharing/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the embedded schema migrations to the database at dsn.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// PostgresStore keeps one snapshot in relational tables. Every Save replaces
// the previous one inside a single transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Save(ctx context.Context, s *Snapshot) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"ride_history", "requests", "offers", "roads", "places", "users", "world_meta"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO world_meta(id, saved_at) VALUES(1, $1)`, time.Now().UTC()); err != nil {
		return err
	}
	for _, u := range s.Users {
		if _, err = tx.ExecContext(ctx, `INSERT INTO users(id, name, role, rating, completed_rides) VALUES($1,$2,$3,$4,$5)`,
			u.ID, u.Name, string(u.Role), u.Rating, u.CompletedRides); err != nil {
			return fmt.Errorf("insert user %d: %w", u.ID, err)
		}
	}
	for i, name := range s.Places {
		if _, err = tx.ExecContext(ctx, `INSERT INTO places(seq, name) VALUES($1,$2)`, i, name); err != nil {
			return fmt.Errorf("insert place %q: %w", name, err)
		}
	}
	for i, r := range s.Roads {
		if _, err = tx.ExecContext(ctx, `INSERT INTO roads(seq, from_name, to_name, cost) VALUES($1,$2,$3,$4)`,
			i, r.From, r.To, r.Cost); err != nil {
			return fmt.Errorf("insert road: %w", err)
		}
	}
	for i, o := range s.Offers {
		if _, err = tx.ExecContext(ctx, `INSERT INTO offers(seq, id, driver_id, start_place, end_place, depart_time, capacity, seats_left) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
			i, o.OfferID, o.DriverID, o.Start, o.End, o.DepartTime, o.Capacity, o.SeatsLeft); err != nil {
			return fmt.Errorf("insert offer %d: %w", o.OfferID, err)
		}
	}
	for i, r := range s.Requests {
		if _, err = tx.ExecContext(ctx, `INSERT INTO requests(seq, id, passenger_id, from_place, to_place, earliest, latest) VALUES($1,$2,$3,$4,$5,$6,$7)`,
			i, r.RequestID, r.PassengerID, r.From, r.To, r.Earliest, r.Latest); err != nil {
			return fmt.Errorf("insert request %d: %w", r.RequestID, err)
		}
	}
	for i, h := range s.History {
		if _, err = tx.ExecContext(ctx, `INSERT INTO ride_history(seq, user_id, offer_id, from_place, to_place, depart_time) VALUES($1,$2,$3,$4,$5,$6)`,
			i, h.UserID, h.OfferID, h.From, h.To, h.DepartTime); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM world_meta WHERE id = 1`).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	s := &Snapshot{}
	err = p.each(ctx, `SELECT id, name, role, rating, completed_rides FROM users ORDER BY id`, func(rows *sql.Rows) error {
		var u models.User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &role, &u.Rating, &u.CompletedRides); err != nil {
			return err
		}
		u.Role = models.Role(role)
		s.Users = append(s.Users, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	err = p.each(ctx, `SELECT name FROM places ORDER BY seq`, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		s.Places = append(s.Places, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load places: %w", err)
	}
	err = p.each(ctx, `SELECT from_name, to_name, cost FROM roads ORDER BY seq`, func(rows *sql.Rows) error {
		var r models.Road
		if err := rows.Scan(&r.From, &r.To, &r.Cost); err != nil {
			return err
		}
		s.Roads = append(s.Roads, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load roads: %w", err)
	}
	err = p.each(ctx, `SELECT id, driver_id, start_place, end_place, depart_time, capacity, seats_left FROM offers ORDER BY seq`, func(rows *sql.Rows) error {
		var o models.OfferSummary
		if err := rows.Scan(&o.OfferID, &o.DriverID, &o.Start, &o.End, &o.DepartTime, &o.Capacity, &o.SeatsLeft); err != nil {
			return err
		}
		s.Offers = append(s.Offers, o)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load offers: %w", err)
	}
	err = p.each(ctx, `SELECT id, passenger_id, from_place, to_place, earliest, latest FROM requests ORDER BY seq`, func(rows *sql.Rows) error {
		var r models.RequestSummary
		if err := rows.Scan(&r.RequestID, &r.PassengerID, &r.From, &r.To, &r.Earliest, &r.Latest); err != nil {
			return err
		}
		s.Requests = append(s.Requests, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	err = p.each(ctx, `SELECT user_id, offer_id, from_place, to_place, depart_time FROM ride_history ORDER BY seq`, func(rows *sql.Rows) error {
		var h models.HistoryEntry
		if err := rows.Scan(&h.UserID, &h.OfferID, &h.From, &h.To, &h.DepartTime); err != nil {
			return err
		}
		s.History = append(s.History, h)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) each(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
