package repository

import (
	"Cadence/internal/model"
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

// nullArg 匹配 SQL NULL 参数
type nullArg struct{}

func (nullArg) Match(v driver.Value) bool { return v == nil }

func TestCreateIfAbsentSetsActiveKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepository(db)

	mock.ExpectExec("INSERT INTO `queue_entries`").
		WillReturnResult(sqlmock.NewResult(5, 1))

	entry := &model.QueueEntry{SourceContentID: 12, TargetPlatform: "instagram", ScheduledFor: time.Now()}
	require.NoError(t, repo.CreateIfAbsent(context.Background(), entry))
	assert.Equal(t, uint64(5), entry.ID)
	assert.Equal(t, model.QueueStatusQueued, entry.Status)
	require.NotNil(t, entry.ActiveKey)
	assert.Equal(t, "12:instagram", *entry.ActiveKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIfAbsentMapsDuplicateKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepository(db)

	mock.ExpectExec("INSERT INTO `queue_entries`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '12:instagram' for key 'uk_active_key'"})

	err := repo.CreateIfAbsent(context.Background(), &model.QueueEntry{SourceContentID: 12, TargetPlatform: "instagram"})
	assert.ErrorIs(t, err, ErrDuplicateActiveEntry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIfAbsentWrapsOtherErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepository(db)

	mock.ExpectExec("INSERT INTO `queue_entries`").
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})

	err := repo.CreateIfAbsent(context.Background(), &model.QueueEntry{SourceContentID: 12, TargetPlatform: "instagram"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateActiveEntry)
}

func TestTransitionClearsActiveKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepository(db)
	postedAt := time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `queue_entries` SET `active_key`=\\?,`external_post_id`=\\?,`posted_at`=\\?,`status`=\\?,`updated_at`=\\? WHERE id = \\? AND status = \\?").
		WithArgs(nullArg{}, "ig_1", postedAt, "posted", sqlmock.AnyArg(), 7, "queued").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `queue_entries`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_content_id", "target_platform", "status", "external_post_id", "posted_at"}).
			AddRow(7, 12, "instagram", "posted", "ig_1", postedAt))
	mock.ExpectCommit()

	entry, err := repo.Transition(context.Background(), 7, model.QueueStatusPosted, TransitionFields{
		ExternalPostID: "ig_1",
		PostedAt:       &postedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPosted, entry.Status)
	assert.Nil(t, entry.ActiveKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRejectsTerminalEntry(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `queue_entries` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), 7, model.QueueStatusFailed, TransitionFields{ErrorMessage: "timeout"})
	assert.ErrorIs(t, err, ErrEntryNotQueued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBucketAssignsAverageBeforeSums(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPeakBucketRepository(db)

	// avg_score 必须基于旧的 score_sum/total_samples 计算
	mock.ExpectExec("INSERT INTO `peak_engagement_buckets` .* ON DUPLICATE KEY UPDATE " +
		"`avg_score`=\\(score_sum \\+ \\?\\) / \\(total_samples \\+ \\?\\)," +
		"`score_sum`=score_sum \\+ \\?," +
		"`total_samples`=total_samples \\+ \\?," +
		"`last_updated`=\\?").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpsertBucket(context.Background(), &model.BucketDelta{
		Key:      model.BucketKey{Platform: "instagram", DayOfWeek: 0, HourOfDay: 14},
		ScoreSum: 140,
		Samples:  2,
		At:       time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBucketSkipsEmptyDelta(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPeakBucketRepository(db)

	require.NoError(t, repo.UpsertBucket(context.Background(), &model.BucketDelta{Key: model.BucketKey{Platform: "instagram"}}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsRetryableWrite(t *testing.T) {
	assert.True(t, IsRetryableWrite(&mysql.MySQLError{Number: 1213}))
	assert.True(t, IsRetryableWrite(&mysql.MySQLError{Number: 1205}))
	assert.True(t, IsRetryableWrite(driver.ErrBadConn))
	assert.False(t, IsRetryableWrite(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsRetryableWrite(context.DeadlineExceeded))
	assert.False(t, IsRetryableWrite(mysql.ErrInvalidConn))
	assert.False(t, IsRetryableWrite(errors.New("connection reset by peer")))
	assert.False(t, IsRetryableWrite(nil))
}

func TestMarkPostedOnlyMovesForward(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContentRepository(db)
	postedAt := time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE `contents` SET `last_repost_at`=\\?.* WHERE id = \\? AND \\(last_repost_at IS NULL OR last_repost_at < \\?\\)").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkPosted(context.Background(), 3, postedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
