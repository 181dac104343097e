package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"gighop/internal/domain"
)

// MaintenanceService re-derives aggregate fields from the ratings collection.
type MaintenanceService struct {
	store domain.TxStore
	cache domain.Cache
}

func NewMaintenanceService(store domain.TxStore, cache domain.Cache) *MaintenanceService {
	return &MaintenanceService{store: store, cache: orNoCache(cache)}
}

// ObjectIDs lists every object id in creation order.
func (s *MaintenanceService) ObjectIDs(ctx context.Context) ([]string, error) {
	docs, err := s.store.Query(ctx, domain.CollectionObjects)
	if err != nil {
		return nil, storeErr("list objects", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// RecomputeRating sets the object's rating to the mean of its rates. An
// object without rates gets its rating cleared and reports nil.
func (s *MaintenanceService) RecomputeRating(ctx context.Context, objectID string) (*float64, error) {
	var avg *float64
	err := s.store.InTx(ctx, func(tx domain.DocumentStore) error {
		if _, err := tx.GetDocument(ctx, domain.CollectionObjects, objectID); err != nil {
			return storeErr("read object", err)
		}
		docs, err := tx.Query(ctx, domain.CollectionRatings, domain.Eq("objectId", objectID))
		if err != nil {
			return storeErr("list rates", err)
		}
		if len(docs) == 0 {
			if err := tx.UpdateFields(ctx, domain.CollectionObjects, objectID, map[string]any{"rating": nil}); err != nil {
				return storeErr("clear object rating", err)
			}
			return nil
		}
		sum := 0
		for _, d := range docs {
			sum += rateFromDoc(d).Value
		}
		mean := float64(sum) / float64(len(docs))
		avg = &mean
		if err := tx.UpdateFields(ctx, domain.CollectionObjects, objectID, map[string]any{"rating": mean}); err != nil {
			return storeErr("update object rating", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidateObject(ctx, s.cache, objectID)
	return avg, nil
}

// PointsDrift compares each user's stored points with the sum of current
// rate values on the objects they own.
type PointsDrift struct {
	UserID   string
	Stored   int
	Expected int
}

func (s *MaintenanceService) PointsDrift(ctx context.Context) ([]PointsDrift, error) {
	objs, err := s.store.Query(ctx, domain.CollectionObjects)
	if err != nil {
		return nil, storeErr("list objects", err)
	}
	owner := make(map[string]string, len(objs))
	for _, d := range objs {
		owner[d.ID] = objectFromDoc(d).OwnerID
	}

	rates, err := s.store.Query(ctx, domain.CollectionRatings)
	if err != nil {
		return nil, storeErr("list rates", err)
	}
	expected := map[string]int{}
	for _, d := range rates {
		r := rateFromDoc(d)
		uid, ok := owner[r.ObjectID]
		if !ok {
			log.Warn().Str("rate_id", d.ID).Str("object_id", r.ObjectID).Msg("rate for missing object")
			continue
		}
		expected[uid] += r.Value
	}

	users, err := s.store.Query(ctx, domain.CollectionUsers)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	var out []PointsDrift
	for _, d := range users {
		u := userFromDoc(d)
		if exp := expected[u.ID]; exp != u.Points {
			out = append(out, PointsDrift{UserID: u.ID, Stored: u.Points, Expected: exp})
		}
	}
	return out, nil
}

// SetPoints overwrites a user's points.
func (s *MaintenanceService) SetPoints(ctx context.Context, userID string, points int) error {
	if err := s.store.UpdateFields(ctx, domain.CollectionUsers, userID, map[string]any{"points": points}); err != nil {
		return storeErr("update points", err)
	}
	invalidateUser(ctx, s.cache, userID)
	return nil
}
