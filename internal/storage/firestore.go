package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/authgate/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Store = (*FirestoreStore)(nil)

// FirestoreStore keeps every entry as one document in a single collection.
// The document ID is the encoded key; the namespace is stored alongside so
// prefix listing can use an equality query.
//
// Firestore's own TTL policies delete documents lazily (up to a day late), so
// expiry is also enforced on every read and by CleanupExpired.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// EntryDoc represents a key-value entry document in Firestore
type EntryDoc struct {
	Key       []string `firestore:"key"`
	Namespace string   `firestore:"namespace"`
	Value     []byte   `firestore:"value"`
	ExpiresAt int64    `firestore:"expires_at"` // unix millis, 0 means no expiry
	UpdatedAt int64    `firestore:"updated_at"`
}

func newEntryDoc(key Key, value []byte, exp time.Time, now time.Time) EntryDoc {
	doc := EntryDoc{
		Key:       key,
		Namespace: key.Namespace(),
		Value:     value,
		UpdatedAt: now.UnixMilli(),
	}
	if !exp.IsZero() {
		doc.ExpiresAt = exp.UnixMilli()
	}
	return doc
}

func (d EntryDoc) expiry() time.Time {
	if d.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(d.ExpiresAt)
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		collection: collection,
		now:        time.Now,
	}, nil
}

func (s *FirestoreStore) doc(key Key) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(key.Encode())
}

// Get implements Store
func (s *FirestoreStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s from Firestore: %w", key, err)
	}

	var entry EntryDoc
	if err := snap.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	if expired(s.now(), entry.expiry()) {
		return nil, ErrNotFound
	}
	return entry.Value, nil
}

// Set implements Store
func (s *FirestoreStore) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	now := s.now()
	entry := newEntryDoc(key, value, expiresAt(now, ttl), now)
	if _, err := s.doc(key).Set(ctx, entry); err != nil {
		return fmt.Errorf("failed to store %s in Firestore: %w", key, err)
	}
	return nil
}

// Take implements Store. The read and the delete run in one transaction so
// two concurrent callers cannot both consume the same entry.
func (s *FirestoreStore) Take(ctx context.Context, key Key) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	ref := s.doc(key)
	var value []byte
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		value = nil
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}

		var entry EntryDoc
		if err := snap.DataTo(&entry); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		if expired(s.now(), entry.expiry()) {
			return nil
		}
		value = entry.Value
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to take %s from Firestore: %w", key, err)
	}
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

// Delete implements Store
func (s *FirestoreStore) Delete(ctx context.Context, key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if _, err := s.doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s from Firestore: %w", key, err)
	}
	return nil
}

// List implements Store
func (s *FirestoreStore) List(ctx context.Context, prefix Key) ([]Entry, error) {
	query := s.client.Collection(s.collection).Query
	if len(prefix) > 0 {
		query = query.Where("namespace", "==", prefix.Namespace())
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	now := s.now()
	var entries []Entry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate entries: %w", err)
		}

		var doc EntryDoc
		if err := snap.DataTo(&doc); err != nil {
			log.LogError("Failed to unmarshal entry from Firestore (id: %s): %v", snap.Ref.ID, err)
			continue
		}
		key := Key(doc.Key)
		if !key.HasPrefix(prefix) || expired(now, doc.expiry()) {
			continue
		}
		entries = append(entries, Entry{Key: key, Value: doc.Value, ExpiresAt: doc.expiry()})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.Encode() < entries[j].Key.Encode()
	})
	return entries, nil
}

// CleanupExpired implements Store
func (s *FirestoreStore) CleanupExpired(ctx context.Context) (int, error) {
	now := s.now().UnixMilli()
	iter := s.client.Collection(s.collection).
		Where("expires_at", ">", 0).
		Where("expires_at", "<=", now).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0
	const maxBatchSize = 500 // Firestore batch write limit

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired entries: %w", err)
		}

		batch.Delete(snap.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}

	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
