package handlers

import (
	"net/http"
	"strings"

	"github.com/AnshRaj112/taskverse-backend/internal/services"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
	"github.com/AnshRaj112/taskverse-backend/pkg/utils"
)

// UpdateProfileRequest holds the owner-editable profile fields. Omitted fields
// are left unchanged.
type UpdateProfileRequest struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phoneNumber"`
	Country     *string `json:"country"`
	State       *string `json:"state"`
}

// UpdateProfile writes the caller's own profile with the caller's rights.
func (a *API) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	partial := store.Record{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "Name cannot be empty")
			return
		}
		if err := utils.ValidateDisplayName(name); err != nil {
			a.fail(w, r, err)
			return
		}
		partial["name"] = name
	}
	for field, v := range map[string]*string{"phoneNumber": req.PhoneNumber, "country": req.Country, "state": req.State} {
		if v != nil {
			partial[field] = strings.TrimSpace(*v)
		}
	}
	if len(partial) == 0 {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}
	if err := a.Store.Update(r.Context(), store.UserPath(principal(r).UID), partial); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile updated", nil)
}

// UploadAvatar replaces the caller's avatar with the uploaded image.
func (a *API) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if a.Avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "Avatar uploads are not available")
		return
	}

	// Parse multipart form; anything past the cap is rejected by the service.
	if err := r.ParseMultipartForm(services.MaxAvatarBytes + 1<<16); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	file.Close()

	if ct := fileHeader.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		writeError(w, http.StatusBadRequest, "Avatar must be an image")
		return
	}

	url, err := a.Avatars.Upload(r.Context(), principal(r).UID, fileHeader)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Avatar updated", envelope{"url": url})
}
