package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	tu "github.com/vnykmshr/taskpool/internal/testutil"
)

func TestNewRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.WorkerPoolSize.WithLabelValues("p").Set(4)
	r.TasksRejected.WithLabelValues("p", "stopped").Inc()
	r.TasksScheduled.WithLabelValues("s").Inc()
	r.AdmissionDenied.WithLabelValues("redis_fixed_window", "api").Inc()

	expected := `
# HELP taskpool_workerpool_workers Number of workers started by the pool
# TYPE taskpool_workerpool_workers gauge
taskpool_workerpool_workers{pool_name="p"} 4
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "taskpool_workerpool_workers"); err != nil {
		t.Fatal(err)
	}

	tu.AssertEqual(t, testutil.ToFloat64(r.TasksRejected.WithLabelValues("p", "stopped")), 1.0)
	tu.AssertEqual(t, testutil.ToFloat64(r.TasksScheduled.WithLabelValues("s")), 1.0)
	tu.AssertEqual(t, testutil.ToFloat64(r.AdmissionDenied.WithLabelValues("redis_fixed_window", "api")), 1.0)
}

func TestNewRegistryDuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	NewRegistry(reg)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantNil bool
	}{
		{"disabled", Config{Enabled: false}, true},
		{"custom registerer", Config{Enabled: true, Registry: prometheus.NewRegistry()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.config)
			tu.AssertEqual(t, r == nil, tt.wantNil)
		})
	}
}

func TestDefaultIsSingleton(t *testing.T) {
	tu.AssertEqual(t, Default(), Default())
	tu.AssertEqual(t, New(DefaultConfig()), Default())
}
