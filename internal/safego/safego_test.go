package safego

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/resource-catalog/resource-catalog/internal/telemetry"
)

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish within timeout")
	}
}

func TestGo_RunsTask(t *testing.T) {
	ran := false
	wait(t, Go("audit_ship", func() { ran = true }))
	if !ran {
		t.Error("task body did not run")
	}
}

func TestGo_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	labels := prometheus.Labels{"task": "tenant_reconciler"}
	before := telemetry.CounterValue(telemetry.BackgroundPanicsTotal, labels)

	wait(t, Go("tenant_reconciler", func() { panic("sweep exploded") }))

	if got := telemetry.CounterValue(telemetry.BackgroundPanicsTotal, labels); got != before+1 {
		t.Errorf("panics{task=tenant_reconciler} = %v, want %v", got, before+1)
	}
	out := buf.String()
	for _, want := range []string{`"task":"tenant_reconciler"`, `"panic":"sweep exploded"`, `"stack":`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}
