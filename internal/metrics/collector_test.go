package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dae2blend/internal/config"
	"dae2blend/internal/models"
)

func TestCollector_RecordConversion(t *testing.T) {
	c := NewCollector(zap.NewNop())

	c.RecordConversion(models.StatusSucceeded)
	c.RecordConversion(models.StatusFailed)
	c.RecordConversion(models.StatusFailed)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.conversionsTotal.WithLabelValues(models.StatusSucceeded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.conversionsTotal.WithLabelValues(models.StatusFailed)))
	assert.InDelta(t, float64(time.Now().Unix()), testutil.ToFloat64(c.lastSuccess), 5)
}

func TestCollector_LastSuccessUnsetOnFailure(t *testing.T) {
	c := NewCollector(nil)
	c.RecordConversion(models.StatusFailed)
	assert.Zero(t, testutil.ToFloat64(c.lastSuccess))
}

func TestCollector_Gauges(t *testing.T) {
	c := NewCollector(zap.NewNop())

	c.AddExtractedBytes(2048)
	c.AddExtractedBytes(0)
	c.SetSceneImages(3, 1)

	assert.Equal(t, 2048.0, testutil.ToFloat64(c.extractedBytes))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.sceneImages.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sceneImages.WithLabelValues("missing")))
}

func TestCollector_ObserveTimings(t *testing.T) {
	c := NewCollector(zap.NewNop())
	tm := NewStageTimings("abc")
	tm.Start(StageResolve)
	tm.End(StageResolve)
	tm.Start(StageHost)
	tm.End(StageHost)

	c.ObserveTimings(tm)
	assert.Equal(t, 2, testutil.CollectAndCount(c.stageDuration))
}

func TestCollector_RegistriesAreIndependent(t *testing.T) {
	a, b := NewCollector(nil), NewCollector(nil)
	a.RecordConversion(models.StatusSucceeded)
	assert.Zero(t, testutil.ToFloat64(b.conversionsTotal.WithLabelValues(models.StatusSucceeded)))
}

func TestCollector_FlushTextfile(t *testing.T) {
	c := NewCollector(zap.NewNop())
	c.RecordConversion(models.StatusSucceeded)
	path := filepath.Join(t.TempDir(), "dae2blend.prom")

	require.NoError(t, c.Flush(context.Background(), config.MetricsConfig{Textfile: path}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dae2blend_conversions_total{status="succeeded"} 1`)
}

func TestCollector_FlushPushgateway(t *testing.T) {
	var method, path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewCollector(zap.NewNop())
	c.RecordConversion(models.StatusFailed)

	require.NoError(t, c.Flush(context.Background(), config.MetricsConfig{PushgatewayURL: srv.URL, Job: "dae2blend"}))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/dae2blend", path)
	assert.NotEmpty(t, body)
}

func TestCollector_FlushErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCollector(zap.NewNop())
	err := c.Flush(context.Background(), config.MetricsConfig{PushgatewayURL: srv.URL, Job: "dae2blend"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "could not push metrics"))

	err = c.Flush(context.Background(), config.MetricsConfig{Textfile: filepath.Join(t.TempDir(), "missing", "x.prom")})
	assert.Error(t, err)
}

func TestCollector_FlushNoSinks(t *testing.T) {
	assert.NoError(t, NewCollector(nil).Flush(context.Background(), config.MetricsConfig{}))
}
