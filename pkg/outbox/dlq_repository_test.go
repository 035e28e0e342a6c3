package outbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/medfarma-backend/pkg/db/dbtest"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

func TestDLQRepositoryDeleteFailedBefore(t *testing.T) {
	tx := dbtest.Postgres(t)
	repo := NewDLQRepository(tx)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := dlqEntry(now.AddDate(0, 0, -120))
	recent := dlqEntry(now.AddDate(0, 0, -5))
	require.NoError(t, repo.InsertTx(tx, stale))
	require.NoError(t, repo.InsertTx(tx, recent))

	deleted, err := repo.DeleteFailedBefore(ctx, tx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	var left []models.OutboxDLQ
	require.NoError(t, tx.Where("event_id IN ?", []uuid.UUID{stale.EventID, recent.EventID}).Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, recent.EventID, left[0].EventID)
}

func TestDLQRepositoryTruncatesLongErrors(t *testing.T) {
	tx := dbtest.Postgres(t)
	repo := NewDLQRepository(tx)
	entry := dlqEntry(time.Now().UTC())
	long := strings.Repeat("x", maxDLQErrorLen+50)
	entry.ErrorMessage = &long
	require.NoError(t, repo.InsertTx(tx, entry))

	var stored models.OutboxDLQ
	require.NoError(t, tx.Where("event_id = ?", entry.EventID).First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.Len(t, *stored.ErrorMessage, maxDLQErrorLen)
}

func dlqEntry(failedAt time.Time) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventProductLowStock,
		AggregateType: enums.AggregateProduct,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		FailedAt:      failedAt,
	}
}
