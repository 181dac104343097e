package app

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"gighop/internal/domain"
	"gighop/internal/filter"
)

type QueryService struct {
	store    domain.DocumentStore
	cache    domain.Cache
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewQueryService(store domain.DocumentStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{store: store, cache: orNoCache(c), cacheTTL: ttl}
}

func (s *QueryService) ttl() int { return int(s.cacheTTL.Seconds()) }

// ListObjects returns every object in creation order.
func (s *QueryService) ListObjects(ctx context.Context) ([]domain.MapObject, error) {
	key := listKey(ctx, s.cache, genObjects, keyAllObjects)
	var out []domain.MapObject
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	// concurrent misses share one store scan
	v, err, _ := s.sf.Do(key, func() (any, error) {
		docs, err := s.store.Query(ctx, domain.CollectionObjects)
		if err != nil {
			return nil, storeErr("list objects", err)
		}
		objs := make([]domain.MapObject, 0, len(docs))
		for _, d := range docs {
			objs = append(objs, objectFromDoc(d))
		}
		_ = s.cache.Set(ctx, key, objs, s.ttl())
		return objs, nil
	})
	if err != nil {
		return nil, err
	}
	// callers may reorder or trim; don't hand out the shared slice
	objs := v.([]domain.MapObject)
	out = make([]domain.MapObject, len(objs))
	copy(out, objs)
	return out, nil
}

// FilterObjects lists objects and narrows them with f around ref. listed is
// the size of the unfiltered listing.
func (s *QueryService) FilterObjects(ctx context.Context, f domain.Filters, ref domain.Coordinate) (kept []domain.MapObject, listed int, err error) {
	all, err := s.ListObjects(ctx)
	if err != nil {
		return nil, 0, err
	}
	return filter.Apply(all, f, ref), len(all), nil
}

func (s *QueryService) GetObject(ctx context.Context, id string) (domain.MapObject, error) {
	key := keyObject(id)
	var o domain.MapObject
	if ok, _ := s.cache.Get(ctx, key, &o); ok {
		return o, nil
	}
	d, err := s.store.GetDocument(ctx, domain.CollectionObjects, id)
	if err != nil {
		return domain.MapObject{}, storeErr("get object", err)
	}
	o = objectFromDoc(d)
	_ = s.cache.Set(ctx, key, o, s.ttl())
	return o, nil
}

func (s *QueryService) GetUser(ctx context.Context, id string) (domain.User, error) {
	key := keyUser(id)
	var u domain.User
	if ok, _ := s.cache.Get(ctx, key, &u); ok {
		return u, nil
	}
	d, err := s.store.GetDocument(ctx, domain.CollectionUsers, id)
	if err != nil {
		return domain.User{}, storeErr("get user", err)
	}
	u = userFromDoc(d)
	_ = s.cache.Set(ctx, key, u, s.ttl())
	return u, nil
}

// MyRating is the caller's current rate of objectID, ErrNotFound if never rated.
func (s *QueryService) MyRating(ctx context.Context, userID, objectID string) (domain.Rate, error) {
	if userID == "" {
		return domain.Rate{}, domain.ErrNotAuthenticated
	}
	d, err := s.store.GetDocument(ctx, domain.CollectionRatings, domain.RateID(userID, objectID))
	if err != nil {
		return domain.Rate{}, storeErr("get rate", err)
	}
	return rateFromDoc(d), nil
}

// Leaderboard ranks users by points, highest first; ties break on username
// then id. n <= 0 returns everyone.
func (s *QueryService) Leaderboard(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	key := listKey(ctx, s.cache, genUsers, keyUsersByPoints)
	var users []domain.User
	if ok, _ := s.cache.Get(ctx, key, &users); !ok {
		docs, err := s.store.Query(ctx, domain.CollectionUsers)
		if err != nil {
			return nil, storeErr("list users", err)
		}
		users = make([]domain.User, 0, len(docs))
		for _, d := range docs {
			users = append(users, userFromDoc(d))
		}
		SortByPoints(users)
		_ = s.cache.Set(ctx, key, users, s.ttl())
	}
	if n > 0 && n < len(users) {
		users = users[:n]
	}
	out := make([]domain.LeaderboardEntry, len(users))
	for i, u := range users {
		out[i] = domain.LeaderboardEntry{Rank: i + 1, User: u}
	}
	return out, nil
}

func SortByPoints(users []domain.User) {
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Username != b.Username {
			return a.Username < b.Username
		}
		return a.ID < b.ID
	})
}

func (s *QueryService) ObjectTypes() []string {
	return append([]string(nil), domain.ObjectTypes...)
}
