package commandrouter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idbcore/internal/async"
)

func TestSpawn_ExitStatusResolvesOnNormalExit(t *testing.T) {
	cfg := SpawnConfig{Path: "/bin/sh", Args: []string{"-c", "exit 0"}}
	p, err := Spawn(cfg, DefaultTerminationStrategy())
	require.NoError(t, err)

	status, err := p.Exit().Await(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, status.ExitCode)
	assert.Equal(t, 0, status.Signal)
}

func TestSpawn_NonZeroExitCodeIsCaptured(t *testing.T) {
	cfg := SpawnConfig{Path: "/bin/sh", Args: []string{"-c", "exit 7"}}
	p, err := Spawn(cfg, DefaultTerminationStrategy())
	require.NoError(t, err)

	status, err := p.Exit().Await(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, status.ExitCode)
}

func TestSpawn_StdoutIsDeliveredToConsumer(t *testing.T) {
	var collected []byte
	consumer := async.NewLambdaConsumer(func(chunk []byte) {
		collected = append(collected, chunk...)
	})

	cfg := SpawnConfig{
		Path: "/bin/sh",
		Args: []string{"-c", "echo hello"},
		IO:   IOConfig{Stdout: consumer},
	}
	p, err := Spawn(cfg, DefaultTerminationStrategy())
	require.NoError(t, err)

	_, err = p.Exit().Await(2 * time.Second)
	require.NoError(t, err)

	_, err = consumer.Completed().Await(2 * time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(collected), "hello")
}

func TestTerminate_SendsSignalAndWaitsForDeath(t *testing.T) {
	cfg := SpawnConfig{Path: "/bin/sh", Args: []string{"-c", "sleep 30"}}
	strategy := ProcessTerminationStrategy{
		Signal:            15,
		WaitForDeath:      true,
		EscalateToSIGKILL: true,
		GracePeriod:       2 * time.Second,
	}
	p, err := Spawn(cfg, strategy)
	require.NoError(t, err)

	err = p.Terminate(context.Background())
	require.NoError(t, err)

	status, err := p.Exit().Await(2 * time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, 0, status.Signal)
}
