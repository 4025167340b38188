package model

import "time"

type Telemetry struct {
	SpeedKPH    int     `json:"speed_kph" cbor:"speed_kph"`
	MaxSpeedKPH int     `json:"max_speed_kph" cbor:"max_speed_kph"`
	FuelPercent float64 `json:"fuel_percent" cbor:"fuel_percent"`
}

// Vitals is the periodic report published to external consumers.
type Vitals struct {
	ClientID    string    `json:"client_id"`
	HeartRate   string    `json:"heart_rate,omitempty"`
	SpeedKPH    int       `json:"speed_kph"`
	FuelPercent float64   `json:"fuel_percent"`
	At          time.Time `json:"at"`
}
