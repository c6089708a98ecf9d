package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/database/testutil"
	"github.com/charlesng35/cmsconsole/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

func newTestNotificationService(t *testing.T, db *gorm.DB) *NotificationService {
	t.Helper()
	svc, err := NewNotificationService(db, nil)
	require.NoError(t, err)
	return svc
}

func newTestRecorder(t *testing.T, db *gorm.DB) (*Recorder, *AuditService, *NotificationService) {
	t.Helper()
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	notifications := newTestNotificationService(t, db)
	recorder, err := NewRecorder(audit, notifications)
	require.NoError(t, err)
	return recorder, audit, notifications
}

func seedNotifications(t *testing.T, svc *NotificationService, recipient string, count int) []models.Notification {
	t.Helper()
	out := make([]models.Notification, 0, count)
	for i := 0; i < count; i++ {
		n, err := svc.Create(context.Background(), CreateNotificationInput{
			RecipientID: recipient,
			Type:        "system",
			Title:       fmt.Sprintf("Notice %d", i+1),
			Message:     "Scheduled maintenance",
		})
		require.NoError(t, err)
		out = append(out, *n)
	}
	return out
}

func unreadListTotal(t *testing.T, svc *NotificationService, recipient string) int64 {
	t.Helper()
	unread := false
	list, err := svc.List(context.Background(), NotificationFilter{RecipientID: recipient, Read: &unread})
	require.NoError(t, err)
	return list.Total
}

func boolPtr(v bool) *bool {
	return &v
}
