package dashboard

import (
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	cameraOpen       atomic.Bool
	streamConnected  atomic.Bool
	sessions         atomic.Uint64
	lastFrameAt      atomic.Int64
	lastInferenceAt  atomic.Int64
	lastStatusUpdate atomic.Int64
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{}
}

func (h *HealthStatus) SetCameraOpen(ok bool) {
	h.cameraOpen.Store(ok)
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
	if ok {
		h.sessions.Add(1)
	}
}

func (h *HealthStatus) MarkFrame(ts time.Time) {
	h.lastFrameAt.Store(ts.UnixNano())
}

func (h *HealthStatus) MarkInference(ts time.Time) {
	h.lastInferenceAt.Store(ts.UnixNano())
}

func (h *HealthStatus) MarkStatus(ts time.Time) {
	h.lastStatusUpdate.Store(ts.UnixNano())
}

func (h *HealthStatus) CameraOpen() bool {
	return h.cameraOpen.Load()
}

func (h *HealthStatus) StreamConnected() bool {
	return h.streamConnected.Load()
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"camera_open":      h.cameraOpen.Load(),
		"stream_connected": h.streamConnected.Load(),
		"sessions":         h.sessions.Load(),
	}
	if v := h.lastFrameAt.Load(); v > 0 {
		out["last_frame_at"] = time.Unix(0, v).UTC()
	}
	if v := h.lastInferenceAt.Load(); v > 0 {
		out["last_inference_at"] = time.Unix(0, v).UTC()
	}
	if v := h.lastStatusUpdate.Load(); v > 0 {
		out["last_status_at"] = time.Unix(0, v).UTC()
	}
	return out
}
