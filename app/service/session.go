package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-user/app/apperr"
	"github.com/vibast-solutions/ms-go-user/app/entity"

	"golang.org/x/crypto/bcrypt"
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*entity.User, error)
	SetRefreshToken(ctx context.Context, userID uint64, token sql.NullString) error
	RotateRefreshToken(ctx context.Context, userID uint64, current, next string) (int64, error)
	UpdatePassword(ctx context.Context, userID uint64, passwordHash string) error
	UpdateDetails(ctx context.Context, userID uint64, fullName, email string) error
	UpdateAvatarURL(ctx context.Context, userID uint64, url string) error
	UpdateCoverImageURL(ctx context.Context, userID uint64, url string) error
}

// MediaFile is a not-yet-uploaded asset handed in by the transport layer.
type MediaFile struct {
	Reader   io.Reader
	Filename string
}

type RegisterInput struct {
	FullName   string
	Email      string
	Username   string
	Password   string
	Avatar     *MediaFile
	CoverImage *MediaFile
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type LoginResult struct {
	User *entity.User
	TokenPair
}

// SessionService owns the session-token lifecycle: registration, credential
// verification, dual-token issuance, rotation, and revocation. The stored
// refresh token is a single slot per user; overwriting it is what revokes
// the previously issued token.
type SessionService struct {
	userRepo userRepository
	tokens   *TokenService
	media    MediaUploader
}

func NewSessionService(userRepo userRepository, tokens *TokenService, media MediaUploader) *SessionService {
	return &SessionService{
		userRepo: userRepo,
		tokens:   tokens,
		media:    media,
	}
}

func (s *SessionService) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	for _, field := range []string{in.FullName, in.Email, in.Username, in.Password} {
		if strings.TrimSpace(field) == "" {
			return nil, apperr.Validation("all fields are required")
		}
	}

	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.TrimSpace(in.Email)

	existing, err := s.userRepo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("user with email or username already exists")
	}

	if in.Avatar == nil {
		return nil, apperr.Validation("avatar file is required")
	}

	avatarURL, err := s.media.Upload(ctx, in.Avatar.Reader, in.Avatar.Filename)
	if err != nil || avatarURL == "" {
		return nil, apperr.Validation("avatar file is required")
	}

	// A failed optional upload yields an absent field, not an error.
	coverImageURL := sql.NullString{}
	if in.CoverImage != nil {
		if url, err := s.media.Upload(ctx, in.CoverImage.Reader, in.CoverImage.Filename); err == nil && url != "" {
			coverImageURL = sql.NullString{String: url, Valid: true}
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &entity.User{
		Username:      username,
		Email:         email,
		FullName:      strings.TrimSpace(in.FullName),
		PasswordHash:  string(hashedPassword),
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	created, err := s.userRepo.FindByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, apperr.Internal("something went wrong while registering the user")
	}

	return created, nil
}

func (s *SessionService) Login(ctx context.Context, username, email, password string) (*LoginResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.TrimSpace(email)
	if username == "" && email == "" {
		return nil, apperr.Validation("username or email is required")
	}

	user, err := s.userRepo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user does not exist")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Auth("invalid user credentials")
	}

	pair, err := s.issueTokenPair(user)
	if err != nil {
		return nil, err
	}

	// Overwriting the slot atomically invalidates any token from a previous
	// login or refresh.
	if err := s.userRepo.SetRefreshToken(ctx, user.ID, sql.NullString{String: pair.RefreshToken, Valid: true}); err != nil {
		return nil, err
	}

	return &LoginResult{User: user, TokenPair: pair}, nil
}

// Refresh rotates the refresh token: the presented token must exactly equal
// the stored slot, and the swap is a single conditional update so a replayed
// or concurrent use of the same token loses the race and is rejected.
func (s *SessionService) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	if strings.TrimSpace(presented) == "" {
		return nil, apperr.Auth("unauthorized request")
	}

	userID, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		// Expired, malformed, and wrong-signature failures all collapse to
		// one message so callers get no oracle.
		return nil, apperr.Auth("invalid refresh token").WithCause(err)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user does not exist")
	}

	if !user.RefreshToken.Valid || user.RefreshToken.String != presented {
		return nil, apperr.Auth("refresh token expired or already used")
	}

	pair, err := s.issueTokenPair(user)
	if err != nil {
		return nil, err
	}

	rotated, err := s.userRepo.RotateRefreshToken(ctx, user.ID, presented, pair.RefreshToken)
	if err != nil {
		return nil, err
	}
	if rotated == 0 {
		return nil, apperr.Auth("refresh token expired or already used")
	}

	return &pair, nil
}

// Logout clears the refresh-token slot. Logging out an already revoked
// session is a no-op success.
func (s *SessionService) Logout(ctx context.Context, userID uint64) error {
	return s.userRepo.SetRefreshToken(ctx, userID, sql.NullString{})
}

// ChangePassword replaces the stored hash after verifying the old password.
// It deliberately leaves the current refresh token untouched.
func (s *SessionService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	if strings.TrimSpace(oldPassword) == "" || strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("old and new passwords are required")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.NotFound("user does not exist")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return apperr.Auth("old password is incorrect")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.userRepo.UpdatePassword(ctx, userID, string(hashedPassword))
}

func (s *SessionService) issueTokenPair(user *entity.User) (TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
