package connectivity

import "fmt"

// ErrServiceNotFound is returned when Call targets an action with no route
// and no local handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("connectivity: service not routable: %s", e.Service)
}

// ErrNoFactory is reported by Reload when a route strategy has no factory.
type ErrNoFactory struct {
	Service  string
	Strategy string
}

func (e *ErrNoFactory) Error() string {
	return fmt.Sprintf("connectivity: no transport factory for strategy %q (service %s)", e.Strategy, e.Service)
}

// ErrFactoryFailed is reported by Reload when a factory cannot build a handler.
type ErrFactoryFailed struct {
	Service  string
	Strategy string
	Endpoint string
	Cause    error
}

func (e *ErrFactoryFailed) Error() string {
	return fmt.Sprintf("connectivity: factory %q failed for service %s (endpoint %s): %v",
		e.Strategy, e.Service, e.Endpoint, e.Cause)
}

func (e *ErrFactoryFailed) Unwrap() error { return e.Cause }

// ErrCallTimeout is returned when a remote call exceeds the route's timeout_ms.
type ErrCallTimeout struct {
	Service string
}

func (e *ErrCallTimeout) Error() string {
	return fmt.Sprintf("connectivity: call timeout: %s", e.Service)
}

// ErrCircuitOpen is returned while the breaker for a service is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("connectivity: circuit open: %s", e.Service)
}

// ErrPanic wraps a recovered handler panic.
type ErrPanic struct {
	Service string
	Value   any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: handler %s panicked: %v", e.Service, e.Value)
}
