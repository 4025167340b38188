package model

import "encoding/json"

const FrameStateStream = "stream"

// EncodedFrameMessage is the per-frame uplink payload.
type EncodedFrameMessage struct {
	DataPointID string `json:"datapt_id"`
	State       string `json:"state"`
	Timestamp   string `json:"timestamp"`
	FrameData   string `json:"frame_data"`
	Advanced    bool   `json:"advanced"`
}

// InferenceMessage is the downlink payload. HR is kept raw because the backend
// sends either a number or a string.
type InferenceMessage struct {
	Advanced  AdvancedInference `json:"advanced"`
	Inference InferenceSummary  `json:"inference"`
}

type AdvancedInference struct {
	RPPG           []float64 `json:"rppg"`
	RPPGTimestamps []float64 `json:"rppg_timestamps"`
}

type InferenceSummary struct {
	HR json.RawMessage `json:"hr"`
}
