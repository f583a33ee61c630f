package publish

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/legal-corpus-crawler/internal/corpus"
	pubmemory "github.com/JakeFAU/legal-corpus-crawler/internal/publisher/memory"
	"github.com/JakeFAU/legal-corpus-crawler/internal/storage/memory"
	"github.com/JakeFAU/legal-corpus-crawler/internal/storage/postgres"
)

type failingBlobStore struct{}

func (failingBlobStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

type recordingRows struct {
	runID   string
	records []corpus.Record
	err     error
}

func (r *recordingRows) StoreRecords(_ context.Context, runID string, records []corpus.Record) error {
	r.runID = runID
	r.records = records
	return r.err
}

func TestNewRunIDIsUUIDv7(t *testing.T) {
	t.Parallel()

	id, err := NewRunID()
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestObjectPath(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Prefix: "/corpora/suriname/", Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, "corpora/suriname/run-1.csv", p.ObjectPath("run-1"))

	p, err = New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "run-1.jsonl", p.ObjectPath("run-1"))

	_, err = New(Config{Format: "parquet"})
	require.Error(t, err)
}

func TestPublishWritesEverySink(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	rows := &recordingRows{}
	notifier := pubmemory.New()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	p, err := New(Config{Prefix: "corpora", Topic: "corpus-runs"},
		WithBlobStore(blobs), WithRowStore(rows), WithNotifier(notifier))
	require.NoError(t, err)
	p.now = func() time.Time { return fixed }

	res, err := p.Publish(context.Background(), "run-1", sampleRecords)
	require.NoError(t, err)
	assert.Equal(t, []string{"memory://corpora/run-1.jsonl"}, res.ObjectURIs)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, "memory-1", res.MessageID)

	body, ok := blobs.Get("corpora/run-1.jsonl")
	require.True(t, ok)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	lines := 0
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)

	assert.Equal(t, "run-1", rows.runID)
	assert.Equal(t, sampleRecords, rows.records)

	msgs := notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "corpus-runs", msgs[0].Topic)
	assert.Equal(t, Notification{
		RunID:       "run-1",
		ObjectURIs:  []string{"memory://corpora/run-1.jsonl"},
		Records:     2,
		Format:      FormatJSONL,
		PublishedAt: fixed,
	}, msgs[0].Payload)
}

func TestPublishJoinsSinkErrorsAndSkipsNotification(t *testing.T) {
	t.Parallel()

	good := memory.NewBlobStore()
	rows := &recordingRows{err: errors.New("db down")}
	notifier := pubmemory.New()

	p, err := New(Config{Topic: "corpus-runs"},
		WithBlobStore(failingBlobStore{}), WithBlobStore(good), WithRowStore(rows), WithNotifier(notifier))
	require.NoError(t, err)

	res, err := p.Publish(context.Background(), "run-2", sampleRecords)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bucket unavailable")
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, []string{"memory://run-2.jsonl"}, res.ObjectURIs, "healthy sinks still receive the corpus")
	assert.Empty(t, notifier.Messages())
}

func TestPublishNotificationFailure(t *testing.T) {
	t.Parallel()

	notifier := pubmemory.New()
	notifier.FailNext(errors.New("topic missing"))
	p, err := New(Config{Topic: "corpus-runs"}, WithNotifier(notifier))
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), "run-3", sampleRecords)
	require.ErrorContains(t, err, "notify corpus-runs")
}

func TestPublishWithoutTopicSkipsNotifier(t *testing.T) {
	t.Parallel()

	notifier := pubmemory.New()
	p, err := New(Config{}, WithNotifier(notifier))
	require.NoError(t, err)

	res, err := p.Publish(context.Background(), "run-4", sampleRecords)
	require.NoError(t, err)
	assert.Empty(t, res.MessageID)
	assert.False(t, res.Skipped)
	assert.Empty(t, notifier.Messages())

	_, err = p.Publish(context.Background(), "", sampleRecords)
	require.Error(t, err)
}

func TestPublishEmptyCorpusTouchesNoSink(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	rows := &recordingRows{}
	notifier := pubmemory.New()
	p, err := New(Config{Topic: "corpus-runs"},
		WithBlobStore(blobs), WithRowStore(rows), WithNotifier(notifier))
	require.NoError(t, err)

	res, err := p.Publish(context.Background(), "run-6", nil)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Records)
	assert.Empty(t, res.ObjectURIs)
	assert.Empty(t, blobs.Paths())
	assert.Empty(t, rows.runID, "row store not called")
	assert.Empty(t, notifier.Messages())
}

func TestPublishToPostgres(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := postgres.NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)
	mock.ExpectBegin()
	for i, rec := range sampleRecords {
		mock.ExpectExec("INSERT INTO corpus_documents").
			WithArgs("run-5", i, rec.SourceURL, rec.Content, rec.SourceLabel).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	p, err := New(Config{}, WithRowStore(store))
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), "run-5", sampleRecords)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
