package service

import (
	"context"
	"strings"

	"github.com/vibast-solutions/ms-go-user/app/apperr"
	"github.com/vibast-solutions/ms-go-user/app/entity"
)

type subscriptionRepository interface {
	CountSubscribers(ctx context.Context, channelID uint64) (int64, error)
	CountSubscribedTo(ctx context.Context, subscriberID uint64) (int64, error)
	IsSubscribed(ctx context.Context, subscriberID, channelID uint64) (bool, error)
}

// ProfileService covers the thin field-mapping operations: detail and media
// updates plus the channel-profile aggregation.
type ProfileService struct {
	userRepo userRepository
	subRepo  subscriptionRepository
	media    MediaUploader
}

func NewProfileService(userRepo userRepository, subRepo subscriptionRepository, media MediaUploader) *ProfileService {
	return &ProfileService{
		userRepo: userRepo,
		subRepo:  subRepo,
		media:    media,
	}
}

// UpdateDetails overwrites fullName and email. Email uniqueness is not
// re-checked here; the unique index is the only guard.
func (s *ProfileService) UpdateDetails(ctx context.Context, userID uint64, fullName, email string) (*entity.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if fullName == "" || email == "" {
		return nil, apperr.Validation("full name and email are required")
	}

	if err := s.userRepo.UpdateDetails(ctx, userID, fullName, email); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user does not exist")
	}
	return user, nil
}

func (s *ProfileService) UpdateAvatar(ctx context.Context, userID uint64, file *MediaFile) (*entity.User, error) {
	url, err := s.uploadRequired(ctx, file, "avatar file is required")
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateAvatarURL(ctx, userID, url); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

func (s *ProfileService) UpdateCoverImage(ctx context.Context, userID uint64, file *MediaFile) (*entity.User, error) {
	url, err := s.uploadRequired(ctx, file, "cover image file is required")
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateCoverImageURL(ctx, userID, url); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

// GetChannelProfile joins the subscription relation twice: once for the
// channel's subscribers and once for the channels the user follows.
func (s *ProfileService) GetChannelProfile(ctx context.Context, username string, viewerID uint64) (*entity.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, apperr.Validation("username is required")
	}

	channel, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, apperr.NotFound("channel does not exist")
	}

	subscribers, err := s.subRepo.CountSubscribers(ctx, channel.ID)
	if err != nil {
		return nil, err
	}
	subscribedTo, err := s.subRepo.CountSubscribedTo(ctx, channel.ID)
	if err != nil {
		return nil, err
	}
	isSubscribed, err := s.subRepo.IsSubscribed(ctx, viewerID, channel.ID)
	if err != nil {
		return nil, err
	}

	return &entity.ChannelProfile{
		UserID:            channel.ID,
		Username:          channel.Username,
		FullName:          channel.FullName,
		Email:             channel.Email,
		AvatarURL:         channel.AvatarURL,
		CoverImageURL:     channel.CoverImageURL.String,
		SubscriberCount:   subscribers,
		SubscribedToCount: subscribedTo,
		IsSubscribed:      isSubscribed,
	}, nil
}

func (s *ProfileService) uploadRequired(ctx context.Context, file *MediaFile, message string) (string, error) {
	if file == nil {
		return "", apperr.Validation(message)
	}
	url, err := s.media.Upload(ctx, file.Reader, file.Filename)
	if err != nil || url == "" {
		return "", apperr.Validation(message)
	}
	return url, nil
}

func (s *ProfileService) reload(ctx context.Context, userID uint64) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user does not exist")
	}
	return user, nil
}
