package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	before := testutil.ToFloat64(JobsTotal.WithLabelValues("done"))
	JobsTotal.WithLabelValues("done").Inc()
	if got := testutil.ToFloat64(JobsTotal.WithLabelValues("done")); got != before+1 {
		t.Errorf("jobs done = %v, want %v", got, before+1)
	}

	ObserveStage("fetch", time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"commentmap_jobs_total", "commentmap_stage_duration_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition missing %s", name)
		}
	}
}
