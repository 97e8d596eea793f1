//go:build integration

package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/models"
)

func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "facewatch",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host: host, Port: port.Int(), Name: "facewatch",
		User: "test", Password: "test", MaxConns: 4,
	}

	sqlDB, err := OpenSQL(cfg.DSN())
	require.NoError(t, err)
	m, err := NewMigrator(sqlDB, cfg.Name)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	store, err := NewPostgresStore(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestIntegration_EnrollDetectNotify(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	enc := strings.Repeat("10", 128)

	p := &models.Profile{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	fe := &models.FaceEncoding{Encoding: enc, SourceKey: "faces/ada.png", Confidence: 1}
	require.NoError(t, store.CreateProfileWithEncoding(ctx, p, fe))

	encs, err := store.ActiveEncodings(ctx)
	require.NoError(t, err)
	require.Len(t, encs, 1)
	assert.Equal(t, enc, encs[0].Encoding)

	ev := &models.DetectionEvent{
		ImageKey: "detections/cam-1/a.png", LocationAddress: "Unknown Location",
		CameraID: "cam-1", CameraType: "fixed", ProfileID: &p.ID, Score: 0.91,
	}
	require.NoError(t, store.CreateDetection(ctx, ev))

	require.NoError(t, store.UpdateNotificationStatus(ctx, ev.ID, false, true))
	require.NoError(t, store.UpdateNotificationStatus(ctx, ev.ID, false, false))

	got, err := store.GetDetection(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.SMSSent, "channel flags never revert")
	assert.False(t, got.EmailSent)
	assert.True(t, got.NotificationSent)
	assert.Equal(t, 2, got.NotifyAttempts)
	assert.Equal(t, "Ada Lovelace", got.ProfileName)

	recent, err := store.DetectionsByCamera(ctx, "cam-1", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	require.NoError(t, store.DeactivateProfile(ctx, p.ID))
	encs, err = store.ActiveEncodings(ctx)
	require.NoError(t, err)
	assert.Empty(t, encs)
}

func TestIntegration_ClaimUndelivered(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	p := &models.Profile{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"}
	require.NoError(t, store.CreateProfileWithEncoding(ctx, p,
		&models.FaceEncoding{Encoding: strings.Repeat("1", 256)}))

	ev := &models.DetectionEvent{CameraID: "cam-2", ProfileID: &p.ID, Score: 0.8}
	require.NoError(t, store.CreateDetection(ctx, ev))

	future := time.Now().Add(time.Hour)
	claimed, err := store.ClaimUndelivered(ctx, future, future, 5, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, ev.ID, claimed[0].ID)

	// the lease pushes last_notify_attempt_at forward
	again, err := store.ClaimUndelivered(ctx, future, time.Now().Add(-time.Minute), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	missing, err := store.GetDetection(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
