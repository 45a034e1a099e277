package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/joseph-ayodele/lease-intake/internal/common"
)

const (
	docPrefix = "doc:"
	embPrefix = "emb:"
)

type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// BadgerIndex is the embedded default index.
type BadgerIndex struct {
	db       *badger.DB
	embedder Embedder
	logger   *slog.Logger
}

type BadgerOption func(*BadgerIndex)

// WithEmbedder enables similarity ranking.
func WithEmbedder(e Embedder) BadgerOption {
	return func(b *BadgerIndex) { b.embedder = e }
}

// OpenBadger opens (or creates) an index at path. inMemory ignores path.
func OpenBadger(path string, inMemory bool, logger *slog.Logger, opts ...BadgerOption) (*BadgerIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var bopts badger.Options
	if inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		bopts = badger.DefaultOptions(path)
	}
	bopts.Logger = &badgerLoggerAdapter{logger: logger}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger index: %w", err)
	}
	b := &BadgerIndex{db: db, logger: logger}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *BadgerIndex) withTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return err
	}
	if isWrite {
		return tx.Commit()
	}
	return nil
}

func (b *BadgerIndex) Upsert(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: empty document id", common.ErrInvalidInput)
	}
	val, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	var vec []float32
	if b.embedder != nil {
		vecs, err := b.embedder.EmbedDocuments(ctx, []string{doc.Content})
		if err != nil {
			return fmt.Errorf("embed %s: %w", doc.ID, err)
		}
		if len(vecs) > 0 {
			vec = vecs[0]
		}
	}

	return b.withTx(func(tx *badger.Txn) error {
		if err := tx.Set([]byte(docPrefix+doc.ID), val); err != nil {
			return err
		}
		if vec == nil {
			// drop a stale vector from an earlier write
			if err := tx.Delete([]byte(embPrefix + doc.ID)); err != nil {
				return err
			}
			return nil
		}
		return tx.Set([]byte(embPrefix+doc.ID), encodeVector(vec))
	}, true)
}

func (b *BadgerIndex) Get(_ context.Context, id string) (Document, error) {
	var doc Document
	err := b.withTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(docPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", common.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	}, false)
	return doc, err
}

func (b *BadgerIndex) Delete(_ context.Context, id string) error {
	return b.withTx(func(tx *badger.Txn) error {
		if _, err := tx.Get([]byte(docPrefix + id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", common.ErrNotFound, id)
		} else if err != nil {
			return err
		}
		if err := tx.Delete([]byte(docPrefix + id)); err != nil {
			return err
		}
		return tx.Delete([]byte(embPrefix + id))
	}, true)
}

func (b *BadgerIndex) Query(ctx context.Context, q Query) ([]Hit, error) {
	var (
		docs []Document
		vecs = map[string][]float32{}
	)
	err := b.withTx(func(tx *badger.Txn) error {
		var err error
		if docs, err = scanDocs(tx, q.Where); err != nil {
			return err
		}
		if b.embedder == nil {
			return nil
		}
		for _, d := range docs {
			item, err := tx.Get([]byte(embPrefix + d.ID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				vecs[d.ID] = decodeVector(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	limit := limitOf(q)
	if b.embedder == nil || q.Text == "" || len(vecs) == 0 {
		return RankByTerms(q.Text, docs, limit), nil
	}

	qv, err := b.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		v, ok := vecs[d.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Document: d, Score: cosine(qv, v)})
	}
	return RankHits(hits, limit), nil
}

func scanDocs(tx *badger.Txn, where map[string]string) ([]Document, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(docPrefix)
	it := tx.NewIterator(opts)
	defer it.Close()

	var docs []Document
	for it.Rewind(); it.Valid(); it.Next() {
		var d Document
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &d)
		}); err != nil {
			return nil, err
		}
		if MatchesWhere(d.Metadata, where) {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (b *BadgerIndex) Close() error {
	return b.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
