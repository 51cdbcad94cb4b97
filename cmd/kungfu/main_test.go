package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/obs"
	"github.com/yongdono/kungfu/internal/schema"
)

func rootFor(cmd *cobra.Command, root string) *cobra.Command {
	parent := &cobra.Command{Use: "kungfu"}
	parent.PersistentFlags().String("config", "", "")
	parent.PersistentFlags().String("root", root, "")
	parent.AddCommand(cmd)
	return parent
}

func TestDumpPrintsFrames(t *testing.T) {
	root := t.TempDir()
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "dump")
	w, err := journal.OpenWriter(location.NewLocator(root), loc, location.PublicUID, journal.Options{PageSize: 1 << 16})
	require.NoError(t, err)
	_, err = w.Write(0, schema.RegisterOf(loc, 1, 0, 0))
	require.NoError(t, err)
	_, err = w.Mark(0, schema.TagPing)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var out bytes.Buffer
	cmd := rootFor(newDumpCommand(), root)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"dump", loc.UName})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "Register")
	require.Contains(t, lines[1], "Ping")
}

func TestDumpRejectsBadUName(t *testing.T) {
	cmd := rootFor(newDumpCommand(), t.TempDir())
	cmd.SetArgs([]string{"dump", "nope"})
	require.Error(t, cmd.Execute())
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs.NewMetrics(reg).IncTimerFire()

	rec := httptest.NewRecorder()
	metricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "kungfu_timer_fires_total 1")
}
