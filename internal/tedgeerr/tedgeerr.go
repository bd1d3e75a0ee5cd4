// Package tedgeerr defines the closed error taxonomy shared by every
// core component: config loading, topic parsing, MQTT transport, HTTP
// calls, plugin execution, state persistence, and operation handling.
// Components construct these types directly rather than sentinel
// errors so callers can recover structured fields with errors.As.
package tedgeerr

import "fmt"

// ConfigError reports a problem loading or validating static
// configuration.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Path, e.Reason)
}

// TopicError reports a topic string that does not conform to the
// canonical te/... grammar. Segment is the zero-based index of the
// offending token.
type TopicError struct {
	Topic   string
	Segment int
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("invalid topic %q at segment %d", e.Topic, e.Segment)
}

// MqttError wraps a failure from the MQTT transport (connect,
// publish, subscribe).
type MqttError struct {
	Op     string
	Reason error
}

func (e *MqttError) Error() string {
	return fmt.Sprintf("mqtt %s failed: %v", e.Op, e.Reason)
}

func (e *MqttError) Unwrap() error { return e.Reason }

// HttpError wraps a failure making an outbound HTTP call.
type HttpError struct {
	Endpoint string
	Reason   error
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("http call to %s failed: %v", e.Endpoint, e.Reason)
}

func (e *HttpError) Unwrap() error { return e.Reason }

// HttpStatusError reports a non-2xx HTTP response.
type HttpStatusError struct {
	Code     int
	Endpoint string
	Method   string
}

func (e *HttpStatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Endpoint, e.Code)
}

// InvalidJWTToken reports a JWT that could not be decoded.
type InvalidJWTToken struct {
	Token  string
	Reason string
}

func (e *InvalidJWTToken) Error() string {
	return fmt.Sprintf("invalid JWT token: %s", e.Reason)
}

// PluginError wraps a failure invoking a software-management plugin.
type PluginError struct {
	Plugin string
	Reason string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s: %s", e.Plugin, e.Reason)
}

// WrongModuleType reports a module whose declared type does not match
// the plugin it was routed to.
type WrongModuleType struct {
	Expected string
	Actual   string
}

func (e *WrongModuleType) Error() string {
	return fmt.Sprintf("wrong module type: expected %q, got %q", e.Expected, e.Actual)
}

// UnknownModuleType reports a module type with no registered plugin
// and no configured default.
type UnknownModuleType struct {
	ModuleType string
}

func (e *UnknownModuleType) Error() string {
	return fmt.Sprintf("unknown module type %q and no default plugin configured", e.ModuleType)
}

// StateError wraps a failure in the persistent state store.
type StateError struct {
	Path   string
	Reason error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state store error at %s: %v", e.Path, e.Reason)
}

func (e *StateError) Unwrap() error { return e.Reason }

// LoadingFromFileFailed reports an I/O failure reading a journal file.
type LoadingFromFileFailed struct {
	Path   string
	Reason error
}

func (e *LoadingFromFileFailed) Error() string {
	return fmt.Sprintf("loading state from %s failed: %v", e.Path, e.Reason)
}

func (e *LoadingFromFileFailed) Unwrap() error { return e.Reason }

// InvalidJson reports a journal file whose contents are not valid
// JSON for the expected record shape.
type InvalidJson struct {
	Path   string
	Reason error
}

func (e *InvalidJson) Error() string {
	return fmt.Sprintf("invalid json in %s: %v", e.Path, e.Reason)
}

func (e *InvalidJson) Unwrap() error { return e.Reason }

// OperationError is the base for operation-state-machine failures.
type OperationError struct {
	OperationID string
	Reason      string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s: %s", e.OperationID, e.Reason)
}

// Timeout reports an operation step that exceeded its deadline.
type Timeout struct {
	OperationID string
	Step        string
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("operation %s timed out waiting for %s", e.OperationID, e.Step)
}

// ChildDeviceNotRegistered reports a request targeting a child device
// absent from the entity registry.
type ChildDeviceNotRegistered struct {
	ExternalID string
}

func (e *ChildDeviceNotRegistered) Error() string {
	return fmt.Sprintf("child device %q is not registered", e.ExternalID)
}

// InvalidRequestedConfigType reports a config-download/upload request
// naming a type absent from the configured entry set.
type InvalidRequestedConfigType struct {
	Type string
}

func (e *InvalidRequestedConfigType) Error() string {
	return fmt.Sprintf("requested configuration type %q is not registered", e.Type)
}

// SignalStreamExhausted reports the OS signal channel closing, which
// should never happen while the runtime is alive.
type SignalStreamExhausted struct{}

func (e *SignalStreamExhausted) Error() string {
	return "signal stream exhausted unexpectedly"
}

// UnsupportedAlarmSeverity reports a retained alarm topic whose
// severity segment does not match a known SmartREST template.
type UnsupportedAlarmSeverity struct {
	Topic    string
	Severity string
}

func (e *UnsupportedAlarmSeverity) Error() string {
	return fmt.Sprintf("unsupported alarm severity %q on topic %s", e.Severity, e.Topic)
}
