package kernelroute

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/up202104595/tdmamesh/internal/logger"
)

// withFakeIP puts a fake `ip` executable that always succeeds at the
// front of PATH for the duration of the test, so IPRouteInstaller
// tests never touch the real kernel routing table.
func withFakeIP(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ip script is a POSIX shell script")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "ip")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestIPRouteInstaller_Install_TracksRoute(t *testing.T) {
	withFakeIP(t)
	inst := NewIPRouteInstaller("eth0", &logger.NopLogger{})

	err := inst.Install(context.Background(), Route{
		Destination: 3, Gateway: 2, DestIP: "10.0.0.13", GatewayIP: "10.0.0.12", Metric: 2,
	})
	require.NoError(t, err)

	adds, deletes, errs := inst.Stats()
	assert.Equal(t, uint64(1), adds)
	assert.Equal(t, uint64(0), deletes)
	assert.Equal(t, uint64(0), errs)
}

func TestIPRouteInstaller_Install_ReplaceCountsAsUpdate(t *testing.T) {
	withFakeIP(t)
	inst := NewIPRouteInstaller("eth0", &logger.NopLogger{})
	route := Route{Destination: 3, Gateway: 2, DestIP: "10.0.0.13", GatewayIP: "10.0.0.12", Metric: 2}

	require.NoError(t, inst.Install(context.Background(), route))
	route.Gateway = 4
	route.GatewayIP = "10.0.0.14"
	require.NoError(t, inst.Install(context.Background(), route))

	adds, deletes, _ := inst.Stats()
	assert.Equal(t, uint64(1), adds)
	assert.Equal(t, uint64(1), deletes)
}

func TestIPRouteInstaller_Delete_UntrackedDestinationIsNoop(t *testing.T) {
	withFakeIP(t)
	inst := NewIPRouteInstaller("eth0", &logger.NopLogger{})
	assert.NoError(t, inst.Delete(context.Background(), 9))
}

func TestIPRouteInstaller_Flush_RemovesEverything(t *testing.T) {
	withFakeIP(t)
	inst := NewIPRouteInstaller("eth0", &logger.NopLogger{})
	require.NoError(t, inst.Install(context.Background(), Route{Destination: 2, DestIP: "10.0.0.12", GatewayIP: "10.0.0.12"}))
	require.NoError(t, inst.Install(context.Background(), Route{Destination: 3, DestIP: "10.0.0.13", GatewayIP: "10.0.0.12"}))

	require.NoError(t, inst.Flush(context.Background()))
	_, deletes, _ := inst.Stats()
	assert.Equal(t, uint64(2), deletes)
}

func TestIPRouteInstaller_Install_CommandFailureIsReportedAndCounted(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake ip script is a POSIX shell script")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "ip")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho boom >&2\nexit 1\n"), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	inst := NewIPRouteInstaller("eth0", &logger.NopLogger{})
	err := inst.Install(context.Background(), Route{Destination: 3, DestIP: "10.0.0.13", GatewayIP: "10.0.0.12"})
	assert.Error(t, err)

	_, _, errs := inst.Stats()
	assert.Equal(t, uint64(1), errs)
}

func TestNoopInstaller_NeverErrors(t *testing.T) {
	var inst NoopInstaller
	assert.NoError(t, inst.Install(context.Background(), Route{}))
	assert.NoError(t, inst.Delete(context.Background(), 1))
	assert.NoError(t, inst.Flush(context.Background()))
}
