package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/lease-intake/internal/common"
)

type firestoreRecord struct {
	ID        string            `firestore:"id"`
	Content   string            `firestore:"content"`
	Metadata  map[string]string `firestore:"metadata"`
	UpdatedAt time.Time         `firestore:"updated_at"`
}

// FirestoreIndex stores one Firestore document per index id.
type FirestoreIndex struct {
	client *firestore.Client
	col    *firestore.CollectionRef
	logger *slog.Logger
}

func NewFirestoreIndex(ctx context.Context, projectID, collection string, logger *slog.Logger) (*FirestoreIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreIndex{client: client, col: client.Collection(collection), logger: logger}, nil
}

// docID escapes ids so filenames with slashes stay a single path segment.
func docID(id string) string {
	return url.PathEscape(id)
}

func (f *FirestoreIndex) Upsert(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: empty document id", common.ErrInvalidInput)
	}
	_, err := f.col.Doc(docID(doc.ID)).Set(ctx, firestoreRecord{
		ID:        doc.ID,
		Content:   doc.Content,
		Metadata:  doc.Metadata,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("firestore set %s: %w", doc.ID, err)
	}
	return nil
}

func (f *FirestoreIndex) Get(ctx context.Context, id string) (Document, error) {
	snap, err := f.col.Doc(docID(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Document{}, fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("firestore get %s: %w", id, err)
	}
	var rec firestoreRecord
	if err := snap.DataTo(&rec); err != nil {
		return Document{}, err
	}
	return Document{ID: rec.ID, Content: rec.Content, Metadata: rec.Metadata}, nil
}

func (f *FirestoreIndex) Delete(ctx context.Context, id string) error {
	_, err := f.col.Doc(docID(id)).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	return err
}

// Query filters on metadata server side and ranks by term overlap locally.
func (f *FirestoreIndex) Query(ctx context.Context, q Query) ([]Hit, error) {
	fq := f.col.Query
	for k, v := range q.Where {
		fq = fq.Where("metadata."+k, "==", v)
	}
	iter := fq.Documents(ctx)
	defer iter.Stop()

	var docs []Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore query: %w", err)
		}
		var rec firestoreRecord
		if err := snap.DataTo(&rec); err != nil {
			f.logger.Warn("index.firestore.decode_failed", "doc", snap.Ref.ID, "error", err)
			continue
		}
		docs = append(docs, Document{ID: rec.ID, Content: rec.Content, Metadata: rec.Metadata})
	}
	return RankByTerms(q.Text, docs, limitOf(q)), nil
}

func (f *FirestoreIndex) Close() error {
	return f.client.Close()
}
