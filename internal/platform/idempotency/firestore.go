package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/closetline/api/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore implements Store on top of the shared Firestore provider.
type FirestoreStore struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[firestoreRecord]
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(provider *pfirestore.Provider) *FirestoreStore {
	return &FirestoreStore{
		provider: provider,
		base:     pfirestore.NewBaseRepository[firestoreRecord](provider, defaultCollection, nil, nil),
	}
}

// Reserve implements Store.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	id := documentID(key)
	var result Reservation
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, found, err := s.base.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		var existing *Record
		if found {
			record := doc.Data.toRecord()
			existing = &record
		}
		reservation, fresh, write, err := reserve(existing, key, fingerprint, now.UTC(), ttl)
		if err != nil {
			return err
		}
		result = reservation
		if !write {
			return nil
		}
		return s.base.SetTx(ctx, tx, id, fromRecord(fresh))
	})
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

// SaveResponse implements Store.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := documentID(key)
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, found, err := s.base.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		var existing *Record
		if found {
			record := doc.Data.toRecord()
			existing = &record
		}
		record, err := complete(existing, key, fingerprint, resp, now.UTC(), ttl)
		if err != nil {
			return err
		}
		return s.base.SetTx(ctx, tx, id, fromRecord(record))
	})
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.base.Delete(ctx, documentID(key))
}

// CleanupExpired deletes up to limit expired records.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if err := s.base.Delete(ctx, doc.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

type firestoreRecord struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func fromRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          Status(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}
