package mdm

// Channel is the management channel as seen by the lifecycle coordinator.
type Channel interface {
	// Connect starts connecting under identity. It returns false when the
	// agent is running outside management and no connection will follow.
	Connect(identity string) bool

	// Disconnect drops the connection. Safe to call when not connected.
	Disconnect()

	IsConnected() bool

	// Settings returns the last configuration document received, or nil.
	Settings() []byte

	// ReportState publishes a device state snapshot for remote diagnostics.
	ReportState(identity string, state []byte) error
}

// Handler receives connection events. Callbacks may run on any goroutine.
type Handler interface {
	OnConnected()
	OnDisconnected()
	OnConfigChanged()
}

// Logger defines the logging interface for channels.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Unmanaged is the channel for devices outside management. Connect always
// reports false.
type Unmanaged struct{}

func (Unmanaged) Connect(string) bool { return false }
func (Unmanaged) Disconnect()         {}
func (Unmanaged) IsConnected() bool   { return false }
func (Unmanaged) Settings() []byte    { return nil }

// ReportState drops the snapshot; there is nobody to report to.
func (Unmanaged) ReportState(string, []byte) error { return nil }
