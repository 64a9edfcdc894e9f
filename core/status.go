package core

// StatusIndicator marks an outbound event as success or error.
type StatusIndicator string

const (
	StatusSuccess StatusIndicator = "success"
	StatusError   StatusIndicator = "error"
)

// Status accompanies completion events.
type Status struct {
	Indicator StatusIndicator `json:"indicator"`
	Message   string          `json:"message"`
}

// OK returns a success status.
func OK() Status {
	return Status{Indicator: StatusSuccess, Message: "Success"}
}

// Failed returns an error status carrying the reason.
func Failed(message string) Status {
	return Status{Indicator: StatusError, Message: message}
}
