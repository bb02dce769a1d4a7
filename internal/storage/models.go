package storage

import (
	"database/sql"
	"time"
)

type flightData struct {
	ID        string
	StartTime time.Time
	Mode      string
	Config    sql.NullString
}

type sampleData struct {
	FlightID  string
	Timestamp time.Time
	Altitude  float64
	Latitude  float64
	Longitude float64
	GyroX     float64
	GyroY     float64
	GyroZ     float64
}

type statusData struct {
	FlightID      string
	Timestamp     time.Time
	QDM           int
	Ignition      int
	Stabilization int
}
