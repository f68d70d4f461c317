package types

// SuccessEnvelope wraps every successful read/write that does not define its
// own flat response shape.
type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorEnvelope is the single failure shape. Error is a short human-readable
// sentence; ErrorType is the coarse kind clients switch on.
type ErrorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
	Code      string `json:"code"`
	Details   any    `json:"details,omitempty"`
}
