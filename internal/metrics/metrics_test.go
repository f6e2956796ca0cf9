package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestLoadCounters(t *testing.T) {
	m := New()
	m.LoadFinished(true)
	m.LoadFinished(false)
	m.LoadIgnored()

	assert.Equal(t, 3.0, gathered(t, m, "photocrispy_loads_total"))
}

func TestTimingObserverRoutesByOperation(t *testing.T) {
	m := New()
	obs := m.TimingObserver()
	obs(OpFrameRender, time.Millisecond)
	obs(OpFrameRender, time.Millisecond)
	obs(OpHistogramDispatch, time.Millisecond)
	obs(OpLoad, time.Second)
	obs("unrelated", time.Second)

	assert.Equal(t, 2.0, gathered(t, m, "photocrispy_frame_render_seconds"))
	assert.Equal(t, 1.0, gathered(t, m, "photocrispy_histogram_dispatch_seconds"))
	assert.Equal(t, 1.0, gathered(t, m, "photocrispy_load_duration_seconds"))
}

func TestHandlerExposesTextFormat(t *testing.T) {
	m := New()
	m.SetGPUResources("texture", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `photocrispy_gpu_resources{kind="texture"} 2`))
}
