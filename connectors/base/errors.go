package base

// ConnectorError describes a failure inside a backend connector, tagged with
// the connector and operation that produced it. The generated-query paths do
// not use it: their errors must carry the backend's own wording for repair.
type ConnectorError struct {
	Connector string
	Operation string
	Message   string
	Cause     error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.Connector + "." + e.Operation + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Connector + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError.
func NewConnectorError(connector, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		Connector: connector,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}
