package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
)

func TestInit_MetricsExposed(t *testing.T) {
	p, shutdown, err := Init(context.Background(), &Config{
		ServiceName:    "dnspotify",
		MetricsEnabled: true,
	})
	require.NoError(t, err)
	defer shutdown(context.Background())

	p.Metrics().RelationToggles.Add(context.Background(), 1,
		metric.WithAttributes(Attr("relation", "like"), Attr("outcome", "ok")))

	w := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "relation_toggles_total")
	assert.Contains(t, w.Body.String(), `relation="like"`)
}

func TestNoop(t *testing.T) {
	p := Noop()
	require.NotNil(t, p.Metrics())

	ctx, span := p.StartSpan(context.Background(), "op")
	span.SetAttribute("k", 1)
	span.SetError(errors.New("boom"))
	span.End()

	assert.Equal(t, "", TraceIDFromContext(ctx))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "dns_potify_1", sanitizeName("dns-potify.1"))
}
