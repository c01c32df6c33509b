package http

import (
	"time"

	"github.com/vibast-solutions/ms-go-user/app/entity"
)

// Envelope is the uniform response shape: every success carries
// {statusCode, data, message, success: true}, every failure
// {statusCode, message, success: false}.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func OK(statusCode int, data any, message string) Envelope {
	return Envelope{StatusCode: statusCode, Data: data, Message: message, Success: true}
}

func Err(statusCode int, message string) Envelope {
	return Envelope{StatusCode: statusCode, Message: message, Success: false}
}

// UserResponse is the sanitized account view: never the password hash,
// never the refresh token.
type UserResponse struct {
	ID            uint64    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func NewUserResponse(user *entity.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		AvatarURL:     user.AvatarURL,
		CoverImageURL: user.CoverImageURL.String,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

type LoginResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type ChannelProfileResponse struct {
	ID                uint64 `json:"id"`
	Username          string `json:"username"`
	FullName          string `json:"fullName"`
	Email             string `json:"email"`
	AvatarURL         string `json:"avatar"`
	CoverImageURL     string `json:"coverImage,omitempty"`
	SubscriberCount   int64  `json:"subscribersCount"`
	SubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

func NewChannelProfileResponse(profile *entity.ChannelProfile) ChannelProfileResponse {
	return ChannelProfileResponse{
		ID:                profile.UserID,
		Username:          profile.Username,
		FullName:          profile.FullName,
		Email:             profile.Email,
		AvatarURL:         profile.AvatarURL,
		CoverImageURL:     profile.CoverImageURL,
		SubscriberCount:   profile.SubscriberCount,
		SubscribedToCount: profile.SubscribedToCount,
		IsSubscribed:      profile.IsSubscribed,
	}
}
