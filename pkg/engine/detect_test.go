package engine

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Noona-Project/noona-warden/pkg/runtime"
	"github.com/The-Noona-Project/noona-warden/pkg/runtime/runtimetest"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

func TestDetectMount_FindsKavitaDataMount(t *testing.T) {
	fake := kavitaFake("/srv/kavita/config", "/data")
	eng, hist := newEngine(fake)

	detection := eng.DetectMount(context.Background(), "noona-raven")

	require.NotNil(t, detection.MountPath)
	assert.Equal(t, "/srv/kavita/config", *detection.MountPath)
	assert.Equal(t, "kavita", detection.Container)

	summary, ok := hist.Summary("noona-raven")
	require.True(t, ok)
	assert.Equal(t, types.StatusDetected, summary.Status)
}

func TestDetectMount_NoKavitaContainer(t *testing.T) {
	fake := kavitaFake("", "")
	eng, hist := newEngine(fake)

	detection := eng.DetectMount(context.Background(), "noona-raven")

	assert.Nil(t, detection.MountPath, "absence is an explicit null, not an error")

	summary, ok := hist.Summary("noona-raven")
	require.True(t, ok)
	assert.Equal(t, types.StatusNotFound, summary.Status)
}

func TestDetectMount_IgnoresWrongDestination(t *testing.T) {
	fake := kavitaFake("/srv/kavita/config", "/config")
	eng, _ := newEngine(fake)

	detection := eng.DetectMount(context.Background(), "noona-raven")
	assert.Nil(t, detection.MountPath)
}

func TestStart_DetectMountInjectsBindAndEnv(t *testing.T) {
	fake := kavitaFake("/srv/kavita/config", "/data")
	eng, _ := newEngine(fake)

	desc := &types.ServiceDescriptor{
		Name:        "noona-raven",
		Image:       "captainpax/noona-raven:latest",
		DetectMount: true,
		MountTarget: "/kavita-data",
	}
	require.NoError(t, eng.Start(context.Background(), desc, nil))

	require.Len(t, fake.Started, 1)
	spec := fake.Started[0]
	assert.Contains(t, spec.Binds, "/srv/kavita/config:/kavita-data")
	assert.Contains(t, spec.Env, "APPDATA=/kavita-data")
	assert.Contains(t, spec.Env, "KAVITA_DATA_MOUNT=/kavita-data")
}

func TestStart_DetectMountProceedsWithoutMatch(t *testing.T) {
	fake := kavitaFake("", "")
	eng, _ := newEngine(fake)

	desc := &types.ServiceDescriptor{
		Name:        "noona-raven",
		Image:       "captainpax/noona-raven:latest",
		DetectMount: true,
	}
	require.NoError(t, eng.Start(context.Background(), desc, nil))

	require.Len(t, fake.Started, 1)
	for _, bind := range fake.Started[0].Binds {
		assert.NotContains(t, bind, DefaultMountTarget)
	}
}

func TestReadLogs_DemultiplexesStreams(t *testing.T) {
	fake := &runtimetest.Fake{
		LogStreams: map[string][]byte{"ctr-1": muxedLogs(t)},
	}
	eng, hist := newEngine(fake)

	desc := &types.ServiceDescriptor{Name: "noona-cache", Image: "redis:7-alpine"}
	require.NoError(t, eng.Start(context.Background(), desc, nil))

	require.Eventually(t, func() bool {
		count := 0
		for _, e := range hist.Get("noona-cache", 0) {
			if e.Type == types.EntryLog {
				count++
			}
		}
		return count == 3
	}, 2*time.Second, 10*time.Millisecond, "log entries never arrived")

	var lines []types.LogLine
	for _, e := range hist.Get("noona-cache", 0) {
		if e.Type == types.EntryLog {
			lines = append(lines, *e.Log)
		}
	}
	// Interleaved frames must land in the order the container wrote them.
	assert.Equal(t, types.LogLine{Stream: "stdout", Message: "ready to accept connections"}, lines[0])
	assert.Equal(t, types.LogLine{Stream: "stderr", Message: "warning: overcommit_memory is set to 0"}, lines[1])
	assert.Equal(t, types.LogLine{Stream: "stdout", Message: "loading dataset"}, lines[2])
}

// kavitaFake builds a fake runtime that optionally hosts one Kavita
// container with a mount at the given destination
func kavitaFake(hostPath, destination string) *runtimetest.Fake {
	fake := &runtimetest.Fake{}
	if hostPath != "" {
		fake.Containers = append(fake.Containers, runtime.ContainerInfo{
			ID:    "kavita-1",
			Names: []string{"kavita"},
			Image: "jvmilazz0/kavita:latest",
			State: "running",
		})
		fake.Details = map[string]*runtime.ContainerDetail{
			"kavita-1": {
				ID:      "kavita-1",
				Name:    "kavita",
				Running: true,
				Mounts:  []runtime.MountPoint{{Source: hostPath, Destination: destination}},
			},
		}
	}
	return fake
}

// muxedLogs builds a multiplexed log stream the way the daemon frames
// non-TTY container output, with stderr interleaved between stdout
// frames
func muxedLogs(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	stdout := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	stderr := stdcopy.NewStdWriter(&buf, stdcopy.Stderr)

	if _, err := fmt.Fprintln(stdout, "ready to accept connections"); err != nil {
		t.Fatal(err)
	}
	if _, err := fmt.Fprintln(stderr, "warning: overcommit_memory is set to 0"); err != nil {
		t.Fatal(err)
	}
	if _, err := fmt.Fprintln(stdout, "loading dataset"); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
