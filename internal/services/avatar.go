package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

const avatarFolder = "avatars"

// MaxAvatarBytes caps uploaded avatar images.
const MaxAvatarBytes = 2 << 20

// AvatarService stores profile pictures on Cloudinary under avatars/<uid>, so
// every principal has a stable avatar URL even before uploading one.
type AvatarService struct {
	cld   *cloudinary.Cloudinary
	store Store
}

func NewAvatarService(cloudName, apiKey, apiSecret string, s Store) (*AvatarService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &AvatarService{cld: cld, store: s}, nil
}

// URL is the delivery URL of uid's avatar.
func (s *AvatarService) URL(uid string) string {
	img, err := s.cld.Image(avatarFolder + "/" + uid)
	if err != nil {
		return ""
	}
	url, err := img.String()
	if err != nil {
		return ""
	}
	return url
}

// Upload replaces uid's avatar and points the profile at it.
func (s *AvatarService) Upload(ctx context.Context, uid string, fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > MaxAvatarBytes {
		return "", fmt.Errorf("%w: avatar must be at most 2MB", ErrInvalidInput)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	// Authorize against the profile before spending an upload.
	if _, err := loadProfile(ctx, s.store, uid); err != nil {
		return "", err
	}

	result, err := s.cld.Upload.Upload(ctx, data, uploader.UploadParams{
		Folder:       avatarFolder,
		PublicID:     uid,
		Overwrite:    api.Bool(true),
		Invalidate:   api.Bool(true),
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if err := s.SetAvatar(ctx, uid, result.SecureURL); err != nil {
		return "", err
	}
	return result.SecureURL, nil
}

// SetAvatar writes avatarUrl with the caller's rights.
func (s *AvatarService) SetAvatar(ctx context.Context, uid, url string) error {
	return s.store.Update(ctx, store.UserPath(uid), store.Record{"avatarUrl": url})
}
