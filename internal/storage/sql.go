package storage

import (
	_ "embed"
)

const (
	insertFlightSQL = `
INSERT INTO flights (
                     id,
                     start_time,
                     mode,
                     config)
VALUES (?, ?, ?, ?)`

	selectFlightSQL = `
SELECT
    id,
    start_time,
    mode,
    config
FROM flights
WHERE
    id = ?`

	selectFlightsSQL = `
SELECT
    id,
    start_time,
    mode,
    config
FROM flights
ORDER BY start_time`

	insertSampleSQL = `
INSERT INTO samples (
                     flight_id,
                     timestamp,
                     altitude,
                     latitude,
                     longitude,
                     gyro_x,
                     gyro_y,
                     gyro_z)
VALUES `

	selectSamplesSQL = `
SELECT
    timestamp,
    altitude,
    latitude,
    longitude,
    gyro_x,
    gyro_y,
    gyro_z
FROM samples
WHERE
    flight_id = ?
    AND timestamp >= ?
    AND timestamp <= ?
ORDER BY timestamp, id`

	countSamplesSQL = `
SELECT
    COUNT(*)
FROM samples
WHERE
    flight_id = ?`

	insertStatusSQL = `
INSERT INTO status_events (
                           flight_id,
                           timestamp,
                           qdm,
                           ignition,
                           stabilization)
VALUES (?, ?, ?, ?, ?)`

	selectStatusSQL = `
SELECT
    timestamp,
    qdm,
    ignition,
    stabilization
FROM status_events
WHERE
    flight_id = ?
ORDER BY timestamp, id`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_samples_flight_time ON samples (flight_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_status_flight_time ON status_events (flight_id, timestamp);`

	// leaves a single database file that can be opened read-only
	finalizeJournalSQL = `
PRAGMA wal_checkpoint(TRUNCATE);
PRAGMA journal_mode = DELETE;`
)

//go:embed schema.sql
var initSchemaSQL string
