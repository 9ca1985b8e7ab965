package process

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsCollector_Launches(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.ProcessLaunched("greeter")
	pmc.ProcessLaunched("greeter")
	pmc.ProcessLaunched("sender")
	pmc.LaunchFailed("sender", ErrorCodeResourceExhausted)

	expected := `
		# HELP test_process_launches_total Total number of child processes launched
		# TYPE test_process_launches_total counter
		test_process_launches_total{entry="greeter"} 2
		test_process_launches_total{entry="sender"} 1
	`
	err := testutil.GatherAndCompare(pmc.Registry(), strings.NewReader(expected), "test_process_launches_total")
	assert.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(pmc.launchFailures.WithLabelValues("sender", "RESOURCE_EXHAUSTED")))
}

func TestPrometheusMetricsCollector_Reaps(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.ProcessReaped("greeter", ExitStatus{Exited: true}, 5*time.Millisecond)
	pmc.ProcessReaped("greeter", ExitStatus{Exited: true, Code: 127}, 2*time.Millisecond)
	pmc.ProcessReaped("greeter", ExitStatus{Signaled: true}, 0)

	expected := `
		# HELP test_process_reaps_total Total number of child exit statuses collected
		# TYPE test_process_reaps_total counter
		test_process_reaps_total{entry="greeter",result="failure"} 1
		test_process_reaps_total{entry="greeter",result="signaled"} 1
		test_process_reaps_total{entry="greeter",result="success"} 1
	`
	err := testutil.GatherAndCompare(pmc.Registry(), strings.NewReader(expected), "test_process_reaps_total")
	assert.NoError(t, err)

	// the zero lifetime is not observed
	count, err := testutil.GatherAndCount(pmc.Registry(), "test_process_lifetime_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusMetricsCollector_Gauges(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("")

	pmc.LiveProcesses(3)
	pmc.PipeClosed(ReadEnd)
	pmc.PipeClosed(WriteEnd)
	pmc.PipeDoubleClose(ReadEnd)

	assert.Equal(t, 3.0, testutil.ToFloat64(pmc.live))
	assert.Equal(t, 1.0, testutil.ToFloat64(pmc.pipeCloses.WithLabelValues("write")))

	count, err := testutil.GatherAndCount(pmc.Registry(), "proclife_pipe_double_closes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNoopMetricsCollector(t *testing.T) {
	mc := NewNoopMetricsCollector()

	assert.NotPanics(t, func() {
		mc.ProcessLaunched("x")
		mc.LaunchFailed("x", ErrorCodeIOError)
		mc.ProcessReaped("x", ExitStatus{}, time.Second)
		mc.LiveProcesses(1)
		mc.PipeClosed(ReadEnd)
		mc.PipeDoubleClose(WriteEnd)
	})
}
