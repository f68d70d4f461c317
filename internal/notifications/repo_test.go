package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/dbtest"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"github.com/stampbook/stampbook-backend/pkg/pagination"
	"github.com/stretchr/testify/require"
)

func TestRepositoryListPagesAndMarksRead(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t).DB())
	recipient := uuid.New()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		n := &models.Notification{
			RecipientID: recipient,
			Type:        enums.NotificationTypeStampAdded,
			Title:       "Stamp added",
			Message:     "one more",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(ctx, n))
	}
	require.NoError(t, repo.Create(ctx, &models.Notification{RecipientID: uuid.New(), Type: enums.NotificationTypeStampAdded, Title: "other"}))

	firstPage, err := repo.List(ctx, listNotificationsParams{RecipientID: recipient, Limit: 2})
	require.NoError(t, err)
	require.Len(t, firstPage, 2)
	require.True(t, firstPage[0].CreatedAt.After(firstPage[1].CreatedAt))

	last := firstPage[1]
	rest, err := repo.List(ctx, listNotificationsParams{
		RecipientID: recipient,
		Limit:       10,
		Cursor:      &pagination.Cursor{At: last.CreatedAt, ID: last.ID},
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)

	mark, err := repo.MarkRead(ctx, recipient, firstPage[0].ID, base.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, mark.Found)
	require.True(t, mark.Updated)

	again, err := repo.MarkRead(ctx, recipient, firstPage[0].ID, base.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, again.Found)
	require.False(t, again.Updated)

	foreign, err := repo.MarkRead(ctx, uuid.New(), firstPage[0].ID, base)
	require.NoError(t, err)
	require.False(t, foreign.Found)

	unread, err := repo.List(ctx, listNotificationsParams{RecipientID: recipient, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 2)

	count, err := repo.MarkAllRead(ctx, recipient, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}
