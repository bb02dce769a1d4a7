package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/telemetry"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath. The
// connections are opened and the schema initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateFlight(ctx context.Context, mode string, config any) (flightID string, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertFlightSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	id := uuid.NewString()
	if _, err = stmt.ExecContext(ctx, id, time.Now().UTC(), mode, configData); err != nil {
		err = fmt.Errorf("inserting flight: %w", err)
		return
	}

	return id, nil
}

func (s *SqliteStore) Flight(ctx context.Context, id string) (flight *Flight, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectFlightSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data flightData
	if err = stmt.QueryRowContext(ctx, id).Scan(&data.ID, &data.StartTime, &data.Mode, &data.Config); err != nil {
		err = fmt.Errorf("scanning flight: %w", err)
		return
	}

	return toFlight(&data), nil
}

func (s *SqliteStore) Flights(ctx context.Context) (flights []*Flight, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFlightsSQL)
	if err != nil {
		err = fmt.Errorf("querying flights: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data flightData
		if err = rows.Scan(&data.ID, &data.StartTime, &data.Mode, &data.Config); err != nil {
			err = fmt.Errorf("scanning flight: %w", err)
			return
		}
		flights = append(flights, toFlight(&data))
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating flights: %w", err)
	}
	return
}

func (s *SqliteStore) StoreSamples(ctx context.Context, flightID string, samples []*telemetry.Sample) (err error) {
	if len(samples) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]any, 0, len(samples)*8)
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?, ?)"

	var sb strings.Builder
	sb.WriteString(insertSampleSQL)

	var n int
	for _, sample := range samples {
		if sample == nil {
			continue
		}

		data := toSampleData(flightID, sample)
		values = append(values,
			data.FlightID,
			data.Timestamp,
			data.Altitude,
			data.Latitude,
			data.Longitude,
			data.GyroX,
			data.GyroY,
			data.GyroZ,
		)

		if n > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
		n++
	}
	if n == 0 {
		return nil
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting samples: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) StoreStatus(ctx context.Context, flightID string, msg status.Message) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertStatusSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	data := toStatusData(flightID, msg)
	data.Timestamp = time.Now().UTC()

	if _, err = stmt.ExecContext(ctx, data.FlightID, data.Timestamp, data.QDM, data.Ignition, data.Stabilization); err != nil {
		return fmt.Errorf("inserting status: %w", err)
	}

	return nil
}

func (s *SqliteStore) StatusEvents(ctx context.Context, flightID string) (events []StatusEvent, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectStatusSQL, flightID)
	if err != nil {
		err = fmt.Errorf("querying status events: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data statusData
		if err = rows.Scan(&data.Timestamp, &data.QDM, &data.Ignition, &data.Stabilization); err != nil {
			err = fmt.Errorf("scanning status event: %w", err)
			return
		}
		events = append(events, StatusEvent{
			Timestamp:     data.Timestamp,
			QDM:           status.Flag(data.QDM),
			Ignition:      status.Flag(data.Ignition),
			Stabilization: status.Flag(data.Stabilization),
		})
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating status events: %w", err)
	}
	return
}

// CountSamples returns the number of samples stored for a flight
func (s *SqliteStore) CountSamples(ctx context.Context, flightID string) (n int64, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	if err = db.QueryRowContext(ctx, countSamplesSQL, flightID).Scan(&n); err != nil {
		err = fmt.Errorf("counting samples: %w", err)
	}
	return
}

// ReadSamples creates a SampleReader over the samples of a flight in time
// order. The returned reader must be closed after use to release database
// resources.
func (s *SqliteStore) ReadSamples(ctx context.Context, flightID string, opts ...ReaderOption) (*SqliteSampleReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSampleReader(ctx, db, flightID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)
			_ = runSQLCommand(s.writeDB, finalizeJournalSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
