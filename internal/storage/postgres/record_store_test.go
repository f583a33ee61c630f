package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/legal-corpus-crawler/internal/corpus"
)

func TestStoreRecordsInsertsRowsInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	records := []corpus.Record{
		{SourceURL: "https://sris.sr/a.pdf", Content: "Artikel A", SourceLabel: "Suriname Rechtsinstituut"},
		{SourceURL: "https://www.dna.sr/b.pdf", Content: "Artikel B", SourceLabel: "Nationale Assemblee Suriname"},
	}
	mock.ExpectBegin()
	for i, rec := range records {
		mock.ExpectExec("INSERT INTO corpus_documents").
			WithArgs("run-1", i, rec.SourceURL, rec.Content, rec.SourceLabel).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.StoreRecords(context.Background(), "run-1", records))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordsRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "legal_docs")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO legal_docs").
		WithArgs("run-2", 0, "https://sris.sr/a.pdf", "A", "SRIS").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO legal_docs").
		WithArgs("run-2", 1, "https://sris.sr/b.pdf", "B\x00", "SRIS").
		WillReturnError(errors.New("invalid byte sequence for encoding \"UTF8\": 0x00"))
	mock.ExpectRollback()

	err = store.StoreRecords(context.Background(), "run-2", []corpus.Record{
		{SourceURL: "https://sris.sr/a.pdf", Content: "A", SourceLabel: "SRIS"},
		{SourceURL: "https://sris.sr/b.pdf", Content: "B\x00", SourceLabel: "SRIS"},
		{SourceURL: "https://sris.sr/c.pdf", Content: "C", SourceLabel: "SRIS"},
	})
	require.ErrorContains(t, err, "insert record 1")
	require.ErrorContains(t, err, "invalid byte sequence")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordsCommitFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO corpus_documents").
		WithArgs("run-3", 0, "https://sris.sr/a.pdf", "A", "SRIS").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err = store.StoreRecords(context.Background(), "run-3", []corpus.Record{
		{SourceURL: "https://sris.sr/a.pdf", Content: "A", SourceLabel: "SRIS"},
	})
	require.ErrorContains(t, err, "commit run run-3")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS corpus_documents").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecordStoreWithPool(mock, "docs; DROP TABLE x")
	require.Error(t, err)

	_, err = NewRecordStore(context.Background(), Config{})
	require.Error(t, err)

	var nilStore *RecordStore
	require.Error(t, nilStore.StoreRecords(context.Background(), "run", nil))
	nilStore.Close()
}
