package process

import (
	"time"
)

// MetricsCollector defines the interface for collecting process lifecycle metrics
type MetricsCollector interface {
	// ProcessLaunched records a successful launch of entry
	ProcessLaunched(entry string)

	// LaunchFailed records a launch that produced no child
	LaunchFailed(entry string, code ErrorCode)

	// ProcessReaped records a collected exit status and the launch-to-reap time
	ProcessReaped(entry string, status ExitStatus, lifetime time.Duration)

	// LiveProcesses records the number of launched, unreaped children
	LiveProcesses(n int)

	// PipeClosed records a pipe end being released
	PipeClosed(end End)

	// PipeDoubleClose records an attempt to close an already closed end
	PipeDoubleClose(end End)
}

// noopMetricsCollector is a no-op implementation of MetricsCollector
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) ProcessLaunched(entry string)             {}
func (n *noopMetricsCollector) LaunchFailed(entry string, code ErrorCode) {}
func (n *noopMetricsCollector) ProcessReaped(entry string, status ExitStatus, lifetime time.Duration) {
}
func (n *noopMetricsCollector) LiveProcesses(count int)  {}
func (n *noopMetricsCollector) PipeClosed(end End)      {}
func (n *noopMetricsCollector) PipeDoubleClose(end End) {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
