package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestRedis starts a Redis container and returns a connected client.
// Skips the test if Docker is not available.
func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, rdb.Ping(ctx).Err())

	cleanup := func() {
		_ = rdb.Close()
		_ = container.Terminate(ctx)
	}
	return rdb, cleanup
}

func TestRedisPresenceRepository_Lifecycle(t *testing.T) {
	rdb, cleanup := setupTestRedis(t)
	defer cleanup()

	repo := NewRedisPresenceRepository(rdb)
	ctx := context.Background()

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return first }
	_, err := repo.AddOrRefresh(ctx, "u1", "Ash", "ash@x.com")
	require.NoError(t, err)

	repo.now = func() time.Time { return first.Add(time.Minute) }
	_, err = repo.AddOrRefresh(ctx, "u2", "Misty", "misty@x.com")
	require.NoError(t, err)

	later := first.Add(time.Hour)
	repo.now = func() time.Time { return later }
	row, err := repo.AddOrRefresh(ctx, "u1", "Ash", "ash@x.com")
	require.NoError(t, err)
	assert.True(t, first.Equal(row.Since))
	assert.True(t, later.Equal(row.LastSeen))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].ID.String(), "ordered by login time")

	online, err := repo.IsOnline(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, online)

	removed, err := repo.Remove(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, removed)

	touched, err := repo.Touch(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, touched)

	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
