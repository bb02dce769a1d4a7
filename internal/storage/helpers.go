package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toConfigData(config any) (sql.NullString, error) {
	var configData sql.NullString

	switch c := config.(type) {
	case nil:
		return configData, nil

	case string:
		configData.String = c

	case []byte:
		configData.String = string(c)

	default:
		p, err := json.Marshal(config)
		if err != nil {
			return configData, fmt.Errorf("marshaling config: %w", err)
		}
		configData.String = string(p)
	}

	configData.Valid = true
	return configData, nil
}

func toSampleData(flightID string, s *telemetry.Sample) *sampleData {
	return &sampleData{
		FlightID:  flightID,
		Timestamp: s.Timestamp.UTC(),
		Altitude:  s.GPS.Altitude,
		Latitude:  s.GPS.Latitude,
		Longitude: s.GPS.Longitude,
		GyroX:     s.Gyro.X,
		GyroY:     s.Gyro.Y,
		GyroZ:     s.Gyro.Z,
	}
}

func toStatusData(flightID string, msg status.Message) *statusData {
	return &statusData{
		FlightID:      flightID,
		QDM:           int(msg.QDM),
		Ignition:      int(msg.Ignition),
		Stabilization: int(msg.Stabilization),
	}
}

func toFlight(data *flightData) *Flight {
	f := Flight{
		ID:        data.ID,
		StartTime: data.StartTime,
		Mode:      data.Mode,
	}
	if data.Config.Valid {
		f.Config = &data.Config.String
	}
	return &f
}
