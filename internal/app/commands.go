package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"gighop/internal/domain"
)

// NewObject is the caller-supplied part of a MapObject.
type NewObject struct {
	Title       string
	Subject     string
	Description string
	Type        string
	Location    domain.Coordinate
}

// NewUser is the profile written at registration.
type NewUser struct {
	Username string
	FullName string
	Email    string
	Phone    string
}

type ObjectService struct {
	store   domain.TxStore
	ratings *RatingService
	blobs   domain.BlobStore
	cache   domain.Cache
	now     func() time.Time
}

func NewObjectService(store domain.TxStore, ratings *RatingService, blobs domain.BlobStore, cache domain.Cache) *ObjectService {
	return &ObjectService{store: store, ratings: ratings, blobs: blobs, cache: orNoCache(cache), now: time.Now}
}

// CreateObject pins a new object owned by userID. The author is taken from
// the caller's profile, so the profile must exist.
func (s *ObjectService) CreateObject(ctx context.Context, userID string, in NewObject) (domain.MapObject, error) {
	if userID == "" {
		return domain.MapObject{}, domain.ErrNotAuthenticated
	}
	if !domain.IsObjectType(in.Type) {
		return domain.MapObject{}, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidInput, in.Type)
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.MapObject{}, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}

	ud, err := s.store.GetDocument(ctx, domain.CollectionUsers, userID)
	if err != nil {
		return domain.MapObject{}, storeErr("read profile", err)
	}

	o := domain.MapObject{
		Title:       in.Title,
		Subject:     in.Subject,
		Description: in.Description,
		Type:        in.Type,
		Location:    in.Location,
		Author:      userFromDoc(ud).Username,
		OwnerID:     userID,
		Timestamp:   s.now().UnixMilli(),
	}
	o.ID, err = s.store.UpsertDocument(ctx, domain.CollectionObjects, "", objectFields(o))
	if err != nil {
		return domain.MapObject{}, storeErr("create object", err)
	}
	invalidateObject(ctx, s.cache, o.ID)
	log.Info().Str("object_id", o.ID).Str("owner_id", userID).Str("type", o.Type).Msg("object created")
	return o, nil
}

// RateObject is the user-facing entry to the rating flow. Owners cannot rate
// their own objects.
func (s *ObjectService) RateObject(ctx context.Context, userID, objectID string, value int) (domain.RatingResult, error) {
	if userID == "" {
		return domain.RatingResult{}, domain.ErrNotAuthenticated
	}
	if !domain.ValidRateValue(value) {
		return domain.RatingResult{}, fmt.Errorf("%w: got %d", domain.ErrInvalidRating, value)
	}
	d, err := s.store.GetDocument(ctx, domain.CollectionObjects, objectID)
	if err != nil {
		return domain.RatingResult{}, storeErr("read object", err)
	}
	if objectFromDoc(d).OwnerID == userID {
		return domain.RatingResult{}, domain.ErrSelfRating
	}
	return s.ratings.SubmitRating(ctx, userID, objectID, value)
}

// AttachObjectPhoto stores the photo and points the object at it. Owner only.
func (s *ObjectService) AttachObjectPhoto(ctx context.Context, userID, objectID, contentType string, r io.Reader) (domain.MapObject, error) {
	if userID == "" {
		return domain.MapObject{}, domain.ErrNotAuthenticated
	}
	ext, err := photoExt(contentType)
	if err != nil {
		return domain.MapObject{}, err
	}
	d, err := s.store.GetDocument(ctx, domain.CollectionObjects, objectID)
	if err != nil {
		return domain.MapObject{}, storeErr("read object", err)
	}
	o := objectFromDoc(d)
	if o.OwnerID != userID {
		return domain.MapObject{}, fmt.Errorf("%w: only the owner can change the photo", domain.ErrForbidden)
	}

	url, err := s.blobs.Put(ctx, "object_photos/"+objectID+ext, contentType, r)
	if err != nil {
		return domain.MapObject{}, fmt.Errorf("store photo: %w", err)
	}
	if err := s.store.UpdateFields(ctx, domain.CollectionObjects, objectID, map[string]any{"photoUrl": url}); err != nil {
		return domain.MapObject{}, storeErr("update object photo", err)
	}
	invalidateObject(ctx, s.cache, objectID)
	o.PhotoURL = &url
	return o, nil
}

type UserService struct {
	store domain.TxStore
	blobs domain.BlobStore
	cache domain.Cache
}

func NewUserService(store domain.TxStore, blobs domain.BlobStore, cache domain.Cache) *UserService {
	return &UserService{store: store, blobs: blobs, cache: orNoCache(cache)}
}

// Register writes the caller's profile. New profiles start at 0 points; a
// repeated registration updates the profile and keeps earned points.
func (s *UserService) Register(ctx context.Context, userID string, in NewUser) (domain.User, error) {
	if userID == "" {
		return domain.User{}, domain.ErrNotAuthenticated
	}
	if strings.TrimSpace(in.Username) == "" {
		return domain.User{}, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}

	var u domain.User
	err := s.store.InTx(ctx, func(tx domain.DocumentStore) error {
		u = domain.User{ID: userID, Username: in.Username, FullName: in.FullName, Email: in.Email, Phone: in.Phone}
		prev, err := tx.GetDocument(ctx, domain.CollectionUsers, userID)
		switch {
		case err == nil:
			old := userFromDoc(prev)
			u.Points, u.PhotoURL = old.Points, old.PhotoURL
		case !errors.Is(err, domain.ErrNotFound):
			return storeErr("read profile", err)
		}
		if _, err := tx.UpsertDocument(ctx, domain.CollectionUsers, userID, userFields(u)); err != nil {
			return storeErr("write profile", err)
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	invalidateUser(ctx, s.cache, userID)
	return u, nil
}

func (s *UserService) AttachProfilePhoto(ctx context.Context, userID, contentType string, r io.Reader) (domain.User, error) {
	if userID == "" {
		return domain.User{}, domain.ErrNotAuthenticated
	}
	ext, err := photoExt(contentType)
	if err != nil {
		return domain.User{}, err
	}
	d, err := s.store.GetDocument(ctx, domain.CollectionUsers, userID)
	if err != nil {
		return domain.User{}, storeErr("read profile", err)
	}
	url, err := s.blobs.Put(ctx, "profile_photos/"+userID+ext, contentType, r)
	if err != nil {
		return domain.User{}, fmt.Errorf("store photo: %w", err)
	}
	if err := s.store.UpdateFields(ctx, domain.CollectionUsers, userID, map[string]any{"photoUrl": url}); err != nil {
		return domain.User{}, storeErr("update profile photo", err)
	}
	invalidateUser(ctx, s.cache, userID)
	u := userFromDoc(d)
	u.PhotoURL = &url
	return u, nil
}

func photoExt(contentType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	}
	return "", fmt.Errorf("%w: unsupported photo type %q", domain.ErrInvalidInput, contentType)
}
