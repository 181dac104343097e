package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"gighop/internal/domain"
)

// RatingService keeps three collections in step when a user rates an object:
// the rate itself, the object's average and the owner's points.
type RatingService struct {
	store domain.TxStore
	cache domain.Cache
}

func NewRatingService(store domain.TxStore, cache domain.Cache) *RatingService {
	return &RatingService{store: store, cache: orNoCache(cache)}
}

// SubmitRating records value as userID's rating of objectID.
//
// A revision credits the owner only with the difference to the previous
// value, so the owner's points track the sum of current rate values. The
// whole sequence runs in one transaction; nothing is persisted on failure.
func (s *RatingService) SubmitRating(ctx context.Context, userID, objectID string, value int) (domain.RatingResult, error) {
	if userID == "" {
		return domain.RatingResult{}, domain.ErrNotAuthenticated
	}
	if !domain.ValidRateValue(value) {
		return domain.RatingResult{}, fmt.Errorf("%w: got %d", domain.ErrInvalidRating, value)
	}

	var res domain.RatingResult
	err := s.store.InTx(ctx, func(tx domain.DocumentStore) error {
		res = domain.RatingResult{ObjectID: objectID}
		rateID := domain.RateID(userID, objectID)

		// lock the object first so concurrent raters of it queue up here
		objDoc, err := tx.GetDocument(ctx, domain.CollectionObjects, objectID)
		if err != nil {
			return storeErr("read object", err)
		}
		res.OwnerID = objectFromDoc(objDoc).OwnerID

		// 1) previous value for this pair; absent means 0
		oldValue := 0
		prev, err := tx.GetDocument(ctx, domain.CollectionRatings, rateID)
		switch {
		case err == nil:
			oldValue = rateFromDoc(prev).Value
		case !errors.Is(err, domain.ErrNotFound):
			return storeErr("read rate", err)
		}

		// 2) create or overwrite
		rate := domain.Rate{UserID: userID, ObjectID: objectID, Value: value}
		if _, err := tx.UpsertDocument(ctx, domain.CollectionRatings, rateID, rateFields(rate)); err != nil {
			return storeErr("write rate", err)
		}

		// 3) mean over every rate of the object, including the one just written
		docs, err := tx.Query(ctx, domain.CollectionRatings, domain.Eq("objectId", objectID))
		if err != nil {
			return storeErr("list rates", err)
		}
		sum := 0
		for _, d := range docs {
			sum += rateFromDoc(d).Value
		}
		res.RatingCount = len(docs)
		if res.RatingCount == 0 {
			// the store lost our own write
			return fmt.Errorf("%w: rate %s missing after write", domain.ErrStoreUnavailable, rateID)
		}
		res.NewAverage = float64(sum) / float64(res.RatingCount)

		// 4) persist the average
		if err := tx.UpdateFields(ctx, domain.CollectionObjects, objectID, map[string]any{"rating": res.NewAverage}); err != nil {
			return storeErr("update object rating", err)
		}

		// 5) credit the owner with the change only; no floor at zero
		res.PointDelta = value - oldValue
		ownerDoc, err := tx.GetDocument(ctx, domain.CollectionUsers, res.OwnerID)
		if err != nil {
			return storeErr("read owner", err)
		}
		res.OwnerPoints = userFromDoc(ownerDoc).Points + res.PointDelta
		if err := tx.UpdateFields(ctx, domain.CollectionUsers, res.OwnerID, map[string]any{"points": res.OwnerPoints}); err != nil {
			return storeErr("update owner points", err)
		}
		return nil
	})
	if err != nil {
		return domain.RatingResult{}, err
	}

	invalidateObject(ctx, s.cache, objectID)
	invalidateUser(ctx, s.cache, res.OwnerID)
	log.Debug().
		Str("object_id", objectID).
		Str("owner_id", res.OwnerID).
		Int("delta", res.PointDelta).
		Float64("avg", res.NewAverage).
		Msg("rating submitted")
	return res, nil
}

// storeErr keeps ErrNotFound visible and folds everything else into ErrStoreUnavailable.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
