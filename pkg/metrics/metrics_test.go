package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sternrassler/cms-edge/pkg/metrics"

	// Register the collectors listed in the catalogue
	_ "github.com/Sternrassler/cms-edge/pkg/cache"
	_ "github.com/Sternrassler/cms-edge/pkg/quota"
	_ "github.com/Sternrassler/cms-edge/pkg/ratelimit"
)

func TestGatherer(t *testing.T) {
	if metrics.Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestHandler(t *testing.T) {
	srv := httptest.NewServer(metrics.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	// Unlabelled gauges are exported from registration on
	for _, name := range []string{"cms_cache_entries", "cms_rate_limit_clients"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
