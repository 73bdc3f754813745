package session

import "time"

// State is the lifecycle of the capture loop.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateRunning   State = "running"
	StateFailed    State = "failed"
)

// Status messages shown to the operator.
const (
	MsgCameraStarted  = "camera started"
	MsgPermission     = "camera permission denied / no camera"
	MsgStopped        = "stopped"
	MsgDetectFailed   = "detect failed"
	MsgRequestError   = "request error"
	MsgHealthFailed   = "health failed"
	MsgCleared        = "cleared"
	msgAcquiring      = "acquiring camera"
	msgRunningPattern = "running: faces=%d"
	msgHealthPattern  = "health: %s"
)

// Status is the operator-visible state: a short message plus the raw
// diagnostic payload of the last operation.
type Status struct {
	State     State     `json:"state"`
	Message   string    `json:"message"`
	OK        bool      `json:"ok"`
	Detail    string    `json:"detail"`
	Faces     int       `json:"faces"`
	SessionID string    `json:"session_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
