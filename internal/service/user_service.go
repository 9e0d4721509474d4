package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"sphere/internal/middleware"
	"sphere/internal/models"
	"sphere/internal/repository"
	"sphere/internal/storage"
	"sphere/internal/validation"

	"github.com/google/uuid"
)

const (
	maxBioLen = 500

	// DefaultAvatarMaxBytes applies when no upload limit is configured.
	DefaultAvatarMaxBytes = 5 * 1024 * 1024
)

var avatarTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// UserService serves profiles and the current user's own activity.
type UserService struct {
	userRepo       repository.UserRepository
	commentRepo    repository.CommentRepository
	blobs          storage.BlobStore
	avatarMaxBytes int64
}

// AvatarUpload is an avatar file received with a profile update.
type AvatarUpload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// UpdateProfileInput carries the fields to change; nil fields are left unchanged.
type UpdateProfileInput struct {
	UserID   uint
	Username *string
	Bio      *string
	Avatar   *AvatarUpload
}

func NewUserService(
	userRepo repository.UserRepository,
	commentRepo repository.CommentRepository,
	blobs storage.BlobStore,
	avatarMaxBytes int64,
) *UserService {
	if avatarMaxBytes <= 0 {
		avatarMaxBytes = DefaultAvatarMaxBytes
	}
	return &UserService{
		userRepo:       userRepo,
		commentRepo:    commentRepo,
		blobs:          blobs,
		avatarMaxBytes: avatarMaxBytes,
	}
}

// GetUserByID returns the full account row, including the email address.
func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetPublicProfile returns what other users may see of id.
func (s *UserService) GetPublicProfile(ctx context.Context, id uint) (*models.PublicProfile, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := user.ToPublic()
	return &profile, nil
}

// UpdateProfile validates the input, stores a new avatar if one was sent and
// then updates the row. A stored avatar is removed again if the update fails.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	fields := repository.ProfileFields{}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := validation.ValidateUsername(username); err != nil {
			return nil, err
		}
		fields.Username = &username
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if len(bio) > maxBioLen {
			return nil, models.NewValidationError(fmt.Sprintf("bio too long (max %d characters)", maxBioLen))
		}
		fields.Bio = &bio
	}

	var avatarKey string
	if in.Avatar != nil {
		key, url, err := s.storeAvatar(ctx, in.UserID, in.Avatar)
		if err != nil {
			return nil, err
		}
		avatarKey = key
		fields.Avatar = &url
	}

	user, err := s.userRepo.UpdateProfile(ctx, in.UserID, fields)
	if err != nil {
		if avatarKey != "" {
			if delErr := s.blobs.Delete(context.WithoutCancel(ctx), avatarKey); delErr != nil {
				middleware.Logger.WarnContext(ctx, "failed to remove orphaned avatar", "key", avatarKey, "error", delErr)
			}
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) storeAvatar(ctx context.Context, userID uint, upload *AvatarUpload) (string, string, error) {
	if s.blobs == nil {
		return "", "", models.NewValidationError("avatar uploads are disabled")
	}
	if upload.Size <= 0 {
		return "", "", models.NewValidationError("avatar file is empty")
	}
	if upload.Size > s.avatarMaxBytes {
		return "", "", models.NewValidationError(fmt.Sprintf("avatar too large (max %dMB)", s.avatarMaxBytes/(1024*1024)))
	}

	ext := strings.ToLower(filepath.Ext(upload.Filename))
	contentType, ok := avatarTypes[ext]
	if !ok {
		return "", "", models.NewValidationError("avatar must be a jpeg, jpg, png or gif image")
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(upload.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", "", models.NewValidationError("could not read avatar file")
	}
	head = head[:n]
	if sniffed := http.DetectContentType(head); sniffed != contentType {
		return "", "", models.NewValidationError("avatar content does not match its file type")
	}

	key := fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), ext)
	body := io.MultiReader(bytes.NewReader(head), upload.Body)
	url, err := s.blobs.Put(ctx, key, contentType, body, upload.Size)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "avatar upload failed", "error", err)
		return "", "", models.NewStoreUnavailableError(err)
	}
	return key, url, nil
}

// ListComments returns every comment userID wrote, newest first.
func (s *UserService) ListComments(ctx context.Context, userID uint) ([]models.CommentView, error) {
	comments, err := s.commentRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toCommentViews(comments), nil
}
