package model

import "time"

type UpdateType string

const (
	UpdateTypePlot      UpdateType = "plot"
	UpdateTypeHeartRate UpdateType = "heart_rate"
	UpdateTypeStatus    UpdateType = "status"
	UpdateTypeClock     UpdateType = "clock"
	UpdateTypeTelemetry UpdateType = "telemetry"
	UpdateTypeConfig    UpdateType = "config"
)

// Update is transport-agnostic framing for dashboard feed payloads.
type Update struct {
	Type          UpdateType `json:"type" cbor:"type"`
	TimestampUnix int64      `json:"timestamp_unix" cbor:"timestamp_unix"`
	Payload       any        `json:"payload" cbor:"payload"`
}

func NewUpdate(kind UpdateType, at time.Time, payload any) Update {
	return Update{Type: kind, TimestampUnix: at.UTC().Unix(), Payload: payload}
}

type PlotSeries struct {
	Times  []float64 `json:"times" cbor:"times"`
	Values []float64 `json:"values" cbor:"values"`
}

type HeartRate struct {
	BPM string `json:"bpm" cbor:"bpm"`
}

type Status struct {
	Message string `json:"message" cbor:"message"`
}

type Clock struct {
	Time string `json:"time" cbor:"time"`
	Date string `json:"date" cbor:"date"`
}
