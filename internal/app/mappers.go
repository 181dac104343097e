package app

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gighop/internal/domain"
)

/********** alias registries (single source of truth) **********/

var objectAliases = map[string][]string{
	"title":       {"title", "name"},
	"subject":     {"subject"},
	"description": {"description", "desc"},
	"author":      {"author", "authorName"},
	"owner":       {"ownerId", "owner_id", "owner"},
	"type":        {"type", "category"},
	"photo":       {"photoUrl", "photo_url", "photo"},
	"lat":         {"latitude", "lat", "location.lat", "location.latitude"},
	"lng":         {"longitude", "lng", "lon", "location.lng", "location.longitude"},
	"rating":      {"rating"},
	"timestamp":   {"timestamp", "createdAt", "created_at"},
}

var userAliases = map[string][]string{
	"username": {"username", "userName", "displayName"},
	"fullname": {"fullname", "fullName", "full_name"},
	"email":    {"email"},
	"phone":    {"phoneNumber", "phone", "phone_number"},
	"photo":    {"photoUrl", "photo_url", "photo"},
	"points":   {"points", "score"},
}

var rateAliases = map[string][]string{
	"user":   {"userId", "user_id", "uid"},
	"object": {"objectId", "object_id"},
	"value":  {"value", "rating"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func lookupStr(m map[string]any, path string) string {
	if s, ok := lookupAny(m, path).(string); ok {
		return s
	}
	return ""
}

// firstStr: first non-empty string for a named alias set.
func firstStr(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return s
		}
	}
	return ""
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// toFloat accepts whatever a JSON decoder or a caller may have produced.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", "."))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// getFloatFlexible: number from several alias paths, nil when none parse.
func getFloatFlexible(m map[string]any, aliases map[string][]string, key string) *float64 {
	for _, p := range aliases[key] {
		if f, ok := toFloat(lookupAny(m, p)); ok && !math.IsNaN(f) {
			return &f
		}
	}
	return nil
}

// getInt64Flexible: like getFloatFlexible but keeps full int64 precision where it can.
func getInt64Flexible(m map[string]any, aliases map[string][]string, key string) int64 {
	for _, p := range aliases[key] {
		switch v := lookupAny(m, p).(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n
			}
			if f, err := v.Float64(); err == nil {
				return int64(f)
			}
		default:
			if f, ok := toFloat(v); ok {
				return int64(f)
			}
		}
	}
	return 0
}

/********** objects **********/

func objectFromDoc(d domain.Document) domain.MapObject {
	m := d.Fields
	o := domain.MapObject{
		ID:          d.ID,
		Title:       firstStr(m, objectAliases, "title"),
		Subject:     firstStr(m, objectAliases, "subject"),
		Description: firstStr(m, objectAliases, "description"),
		Author:      firstStr(m, objectAliases, "author"),
		OwnerID:     firstStr(m, objectAliases, "owner"),
		Type:        firstStr(m, objectAliases, "type"),
		PhotoURL:    ptrStr(firstStr(m, objectAliases, "photo")),
		Rating:      getFloatFlexible(m, objectAliases, "rating"),
		Timestamp:   getInt64Flexible(m, objectAliases, "timestamp"),
	}
	if lat := getFloatFlexible(m, objectAliases, "lat"); lat != nil {
		o.Location.Lat = *lat
	}
	if lng := getFloatFlexible(m, objectAliases, "lng"); lng != nil {
		o.Location.Lng = *lng
	}
	return o
}

// objectFields is the stored layout; rating is left out until the first rate.
func objectFields(o domain.MapObject) map[string]any {
	f := map[string]any{
		"title":       o.Title,
		"subject":     o.Subject,
		"description": o.Description,
		"author":      o.Author,
		"ownerId":     o.OwnerID,
		"type":        o.Type,
		"latitude":    o.Location.Lat,
		"longitude":   o.Location.Lng,
		"timestamp":   o.Timestamp,
	}
	if o.Rating != nil {
		f["rating"] = *o.Rating
	}
	if o.PhotoURL != nil {
		f["photoUrl"] = *o.PhotoURL
	}
	return f
}

/********** users **********/

func userFromDoc(d domain.Document) domain.User {
	m := d.Fields
	return domain.User{
		ID:       d.ID,
		Username: firstStr(m, userAliases, "username"),
		FullName: firstStr(m, userAliases, "fullname"),
		Email:    firstStr(m, userAliases, "email"),
		Phone:    firstStr(m, userAliases, "phone"),
		PhotoURL: ptrStr(firstStr(m, userAliases, "photo")),
		Points:   int(getInt64Flexible(m, userAliases, "points")),
	}
}

func userFields(u domain.User) map[string]any {
	f := map[string]any{
		"username":    u.Username,
		"fullname":    u.FullName,
		"email":       u.Email,
		"phoneNumber": u.Phone,
		"points":      u.Points,
	}
	if u.PhotoURL != nil {
		f["photoUrl"] = *u.PhotoURL
	}
	return f
}

/********** rates **********/

func rateFromDoc(d domain.Document) domain.Rate {
	m := d.Fields
	return domain.Rate{
		UserID:   firstStr(m, rateAliases, "user"),
		ObjectID: firstStr(m, rateAliases, "object"),
		Value:    int(getInt64Flexible(m, rateAliases, "value")),
	}
}

func rateFields(r domain.Rate) map[string]any {
	return map[string]any{
		"userId":   r.UserID,
		"objectId": r.ObjectID,
		"value":    r.Value,
	}
}
