// Package publish ships a finished corpus to its configured destinations:
// blob stores for the encoded file, a row store, and a run notification.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/legal-corpus-crawler/internal/corpus"
	"github.com/JakeFAU/legal-corpus-crawler/internal/storage"
)

// RowStore persists records one row each.
type RowStore interface {
	StoreRecords(ctx context.Context, runID string, records []corpus.Record) error
}

// Notifier announces a completed publication.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Config controls object naming and notification.
type Config struct {
	Prefix string
	Format Format
	Topic  string
}

// Notification is the message sent after every sink succeeded.
type Notification struct {
	RunID       string    `json:"run_id"`
	ObjectURIs  []string  `json:"object_uris"`
	Records     int       `json:"records"`
	Format      Format    `json:"format"`
	PublishedAt time.Time `json:"published_at"`
}

// Result reports what a Publish call produced.
type Result struct {
	RunID      string
	ObjectURIs []string
	Records    int
	MessageID  string
	// Skipped is set when there was nothing to publish.
	Skipped bool
}

// Option customises a Publisher.
type Option func(*Publisher)

// WithBlobStore adds a destination for the encoded corpus file.
func WithBlobStore(store storage.BlobStore) Option {
	return func(p *Publisher) {
		if store != nil {
			p.blobs = append(p.blobs, store)
		}
	}
}

// WithRowStore sets the row-level sink.
func WithRowStore(store RowStore) Option {
	return func(p *Publisher) { p.rows = store }
}

// WithNotifier sets the run notifier. It is used only when Config.Topic is set.
func WithNotifier(n Notifier) Option {
	return func(p *Publisher) { p.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Publisher fans a corpus out to every configured sink.
type Publisher struct {
	cfg      Config
	blobs    []storage.BlobStore
	rows     RowStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a Publisher.
func New(cfg Config, opts ...Option) (*Publisher, error) {
	format, err := ParseFormat(string(cfg.Format))
	if err != nil {
		return nil, err
	}
	cfg.Format = format
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	p := &Publisher{cfg: cfg, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewRunID returns a time-ordered identifier for one publication.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// ObjectPath is the object name used for runID.
func (p *Publisher) ObjectPath(runID string) string {
	name := runID + "." + p.cfg.Format.Ext()
	if p.cfg.Prefix == "" {
		return name
	}
	return path.Join(p.cfg.Prefix, name)
}

// Publish writes records to every sink. Sink failures do not stop the other
// sinks; they are joined into the returned error. The notification is sent
// only when every sink succeeded. An empty corpus touches no sink.
func (p *Publisher) Publish(ctx context.Context, runID string, records []corpus.Record) (Result, error) {
	res := Result{RunID: runID, Records: len(records)}
	if runID == "" {
		return res, errors.New("run id is required")
	}
	logger := p.logger.With(zap.String("run_id", runID))
	if len(records) == 0 {
		logger.Warn("no documents to publish")
		res.Skipped = true
		return res, nil
	}

	var errs []error
	if len(p.blobs) > 0 {
		var buf bytes.Buffer
		if err := Encode(&buf, p.cfg.Format, records); err != nil {
			return res, err
		}
		objectPath := p.ObjectPath(runID)
		for _, store := range p.blobs {
			uri, err := store.PutObject(ctx, objectPath, p.cfg.Format.ContentType(), bytes.NewReader(buf.Bytes()))
			if err != nil {
				logger.Error("corpus upload failed", zap.String("path", objectPath), zap.Error(err))
				errs = append(errs, fmt.Errorf("upload %s: %w", objectPath, err))
				continue
			}
			logger.Info("corpus uploaded", zap.String("uri", uri), zap.Int("bytes", buf.Len()))
			res.ObjectURIs = append(res.ObjectURIs, uri)
		}
	}

	if p.rows != nil {
		if err := p.rows.StoreRecords(ctx, runID, records); err != nil {
			logger.Error("corpus rows failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("store rows: %w", err))
		} else {
			logger.Info("corpus rows stored", zap.Int("records", len(records)))
		}
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	if p.notifier != nil && p.cfg.Topic != "" {
		msg := Notification{
			RunID:       runID,
			ObjectURIs:  res.ObjectURIs,
			Records:     len(records),
			Format:      p.cfg.Format,
			PublishedAt: p.now().UTC(),
		}
		id, err := p.notifier.Publish(ctx, p.cfg.Topic, msg)
		if err != nil {
			logger.Error("run notification failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
			return res, fmt.Errorf("notify %s: %w", p.cfg.Topic, err)
		}
		res.MessageID = id
		logger.Info("run notification sent", zap.String("topic", p.cfg.Topic), zap.String("message_id", id))
	}
	return res, nil
}
