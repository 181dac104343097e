package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"gighop/internal/adapters/blob"
	"gighop/internal/adapters/identity"
	"gighop/internal/adapters/observability"
	"gighop/internal/app"
	"gighop/internal/domain"
)

const maxUploadBytes = 10 << 20

var validate = validator.New()

type Handlers struct {
	Q               *app.QueryService
	Objects         *app.ObjectService
	Users           *app.UserService
	LeaderboardSize int
}

type problem struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers, auth domain.Authenticator) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(auth))

		r.Get("/object-types", h.objectTypes)
		r.Get("/objects", h.listObjects)
		r.Get("/objects/{id}", h.getObject)
		r.Get("/users/{id}", h.getUser)
		r.Get("/leaderboard", h.leaderboard)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)
			r.Post("/objects", h.createObject)
			r.Put("/objects/{id}/photo", h.putObjectPhoto)
			r.Post("/objects/{id}/ratings", h.rateObject)
			r.Get("/objects/{id}/ratings/me", h.myRating)
			r.Post("/users", h.registerUser)
			r.Put("/users/me/photo", h.putProfilePhoto)
		})
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemFields(w, status, title, detail, nil)
}

func writeProblemFields(w http.ResponseWriter, status int, title, detail string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	p := problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Fields: fields}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps service errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, domain.ErrSelfRating):
		writeProblem(w, http.StatusForbidden, "Self Rating", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrInvalidRating):
		writeProblem(w, http.StatusBadRequest, "Invalid Rating", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid Input", err.Error())
	case errors.As(err, &tooBig), errors.Is(err, blob.ErrTooLarge):
		writeProblem(w, http.StatusRequestEntityTooLarge, "Too Large", "upload exceeds the size limit")
	case errors.Is(err, domain.ErrStoreUnavailable):
		log.Error().Err(err).Str("route", routeOf(r)).Msg("store unavailable")
		writeProblem(w, http.StatusServiceUnavailable, "Service Unavailable", "please retry later")
	default:
		log.Error().Err(err).Str("route", routeOf(r)).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes v with a weak ETag and answers 304 when the client has it.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); etag != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("route", routeOf(r)).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON body")
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the problem response itself and reports false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[fe.Field()] = formatFieldError(fe)
			}
			writeProblemFields(w, http.StatusUnprocessableEntity, "Validation Failed", "", fields)
			return false
		}
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return false
	}
	return true
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email"
	case "latitude":
		return "must be a latitude in [-90, 90]"
	case "longitude":
		return "must be a longitude in [-180, 180]"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// ---- queries ----

func (h *Handlers) objectTypes(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, map[string]any{"types": h.Q.ObjectTypes()})
}

// parseFilters reads the list query. Empty parameters are wildcards.
func parseFilters(r *http.Request) (domain.Filters, domain.Coordinate, map[string]string) {
	q := r.URL.Query()
	bad := map[string]string{}
	var f domain.Filters
	var ref domain.Coordinate

	f.Author = strings.TrimSpace(q.Get("author"))
	f.Type = q.Get("type")
	f.Subject = q.Get("subject")

	if v := q.Get("minRating"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > domain.MaxRateValue {
			bad["minRating"] = "must be an integer between 0 and 10"
		}
		f.MinRating = n
	}
	for _, p := range []struct {
		key string
		dst **int64
	}{{"from", &f.Start}, {"to", &f.End}} {
		if v := q.Get(p.key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				bad[p.key] = "must be epoch milliseconds"
				continue
			}
			*p.dst = &n
		}
	}
	if v := q.Get("radiusKm"); v != "" {
		km, err := strconv.ParseFloat(v, 64)
		if err != nil || !finite(km) || km < 0 {
			bad["radiusKm"] = "must be a non-negative number"
		}
		f.RadiusKm = km
	}
	if f.RadiusKm > 0 {
		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
		if errLat != nil || !finite(lat) || lat < -90 || lat > 90 {
			bad["lat"] = "is required with radiusKm and must be in [-90, 90]"
		}
		if errLng != nil || !finite(lng) || lng < -180 || lng > 180 {
			bad["lng"] = "is required with radiusKm and must be in [-180, 180]"
		}
		ref = domain.Coordinate{Lat: lat, Lng: lng}
	}
	return f, ref, bad
}

// ParseFloat accepts NaN and Inf, which every range check lets through.
func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (h *Handlers) listObjects(w http.ResponseWriter, r *http.Request) {
	f, ref, bad := parseFilters(r)
	if len(bad) > 0 {
		writeProblemFields(w, http.StatusBadRequest, "Invalid Filters", "", bad)
		return
	}
	out, listed, err := h.Q.FilterObjects(r.Context(), f, ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !f.IsZero() {
		observability.ObserveFilter(listed, len(out))
	}
	writeCached(w, r, map[string]any{"items": out, "count": len(out)})
}

func (h *Handlers) getObject(w http.ResponseWriter, r *http.Request) {
	o, err := h.Q.GetObject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, o)
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Q.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, u)
}

func (h *Handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	n := h.LeaderboardSize
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		n = l
	}
	out, err := h.Q.Leaderboard(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, map[string]any{"items": out})
}

func (h *Handlers) myRating(w http.ResponseWriter, r *http.Request) {
	rate, err := h.Q.MyRating(r.Context(), identity.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

// ---- commands ----

type createObjectRequest struct {
	Title       string   `json:"title" validate:"required,max=120"`
	Subject     string   `json:"subject" validate:"max=120"`
	Description string   `json:"description" validate:"max=2000"`
	Type        string   `json:"type" validate:"required,oneof=Rock Rap Jazz Folk Techno Pop"`
	Lat         *float64 `json:"lat" validate:"required,latitude"`
	Lng         *float64 `json:"lng" validate:"required,longitude"`
}

func (h *Handlers) createObject(w http.ResponseWriter, r *http.Request) {
	var req createObjectRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	o, err := h.Objects.CreateObject(r.Context(), identity.UserID(r.Context()), app.NewObject{
		Title:       req.Title,
		Subject:     req.Subject,
		Description: req.Description,
		Type:        req.Type,
		Location:    domain.Coordinate{Lat: *req.Lat, Lng: *req.Lng},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/objects/"+o.ID)
	writeJSON(w, http.StatusCreated, o)
}

type rateRequest struct {
	// range is checked by the rating service so it reports ErrInvalidRating
	Value *int `json:"value" validate:"required"`
}

func (h *Handlers) rateObject(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.Objects.RateObject(r.Context(), identity.UserID(r.Context()), chi.URLParam(r, "id"), *req.Value)
	observability.ObserveRating(err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	FullName string `json:"fullname" validate:"max=80"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phoneNumber" validate:"omitempty,max=32"`
}

func (h *Handlers) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	u, err := h.Users.Register(r.Context(), identity.UserID(r.Context()), app.NewUser{
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handlers) putObjectPhoto(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	o, err := h.Objects.AttachObjectPhoto(r.Context(), identity.UserID(r.Context()), chi.URLParam(r, "id"), r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handlers) putProfilePhoto(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	u, err := h.Users.AttachProfilePhoto(r.Context(), identity.UserID(r.Context()), r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
