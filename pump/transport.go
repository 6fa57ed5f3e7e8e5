package pump

// Transport is the wired side of the bridge as the pump sees it. Every method
// is called from the pump goroutine only.
type Transport interface {
	// Init brings the transport up. An error is fatal.
	Init() error
	// Task services pending transport events. It must not block.
	Task()
	// Mounted reports whether the host has enumerated and configured the device.
	Mounted() bool
	// Suspended reports whether the host has suspended the bus.
	Suspended() bool
	// RemoteWakeup asks the host to resume. It returns false when the host did not allow it.
	RemoteWakeup() bool
	// Ready reports whether the IN endpoint can accept a report.
	Ready() bool
	// SendReport queues one input report. It returns false if the report was not
	// accepted. b is only valid for the duration of the call.
	SendReport(b []byte) bool
}
