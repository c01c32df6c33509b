package service_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-user/app/apperr"
	"github.com/vibast-solutions/ms-go-user/app/repository"
	"github.com/vibast-solutions/ms-go-user/app/service"
	"github.com/vibast-solutions/ms-go-user/config"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"
)

const (
	findByIDQuery           = `(?s)SELECT id, username, email, full_name, password_hash, avatar_url, cover_image_url,\s+refresh_token, created_at, updated_at\s+FROM users WHERE id = \?`
	findByUsernameOrEmail   = `(?s)SELECT id, username, email, full_name, password_hash, avatar_url, cover_image_url,\s+refresh_token, created_at, updated_at\s+FROM users WHERE username = \? OR email = \?\s+LIMIT 1`
	insertUserQuery         = `(?s)INSERT INTO users \(username, email, full_name, password_hash, avatar_url, cover_image_url, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?\)`
	setRefreshTokenQuery    = `UPDATE users SET refresh_token = \?, updated_at = \? WHERE id = \?$`
	rotateRefreshTokenQuery = `UPDATE users SET refresh_token = \?, updated_at = \? WHERE id = \? AND refresh_token = \?`
	updatePasswordQuery     = `UPDATE users SET password_hash = \?, updated_at = \? WHERE id = \?`
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"full_name",
	"password_hash",
	"avatar_url",
	"cover_image_url",
	"refresh_token",
	"created_at",
	"updated_at",
}

type fakeUploader struct {
	url   string
	err   error
	calls int
}

func (f *fakeUploader) Upload(_ context.Context, _ io.Reader, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
	}
}

func newSessionService(t *testing.T, uploader *fakeUploader) (*service.SessionService, *service.TokenService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	tokens := service.NewTokenService(testConfig())
	svc := service.NewSessionService(repository.NewUserRepository(db), tokens, uploader)

	return svc, tokens, mock, func() { _ = db.Close() }
}

func addUserRow(rows *sqlmock.Rows, id uint64, username, email, passwordHash string, refreshToken sql.NullString) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id,
		username,
		email,
		"Alice A",
		passwordHash,
		"https://cdn.example.com/a.png",
		sql.NullString{Valid: false},
		refreshToken,
		now,
		now,
	)
}

func TestSessionService_Register_CreatesUser(t *testing.T) {
	uploader := &fakeUploader{url: "https://cdn.example.com/a.png"}
	svc, _, mock, cleanup := newSessionService(t, uploader)
	defer cleanup()

	mock.ExpectQuery(findByUsernameOrEmail).
		WithArgs("alice", "a@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WithArgs("alice", "a@x.com", "Alice A", sqlmock.AnyArg(), uploader.url, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", "hash", sql.NullString{}))

	user, err := svc.Register(context.Background(), service.RegisterInput{
		FullName: "Alice A",
		Email:    "a@x.com",
		Username: "Alice",
		Password: "p1",
		Avatar:   &service.MediaFile{Reader: strings.NewReader("img"), Filename: "a.png"},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected lowercased username, got %q", user.Username)
	}
	if user.RefreshToken.Valid {
		t.Fatalf("expected no refresh token on a fresh account")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_Register_Conflict(t *testing.T) {
	uploader := &fakeUploader{url: "https://cdn.example.com/a.png"}
	svc, _, mock, cleanup := newSessionService(t, uploader)
	defer cleanup()

	mock.ExpectQuery(findByUsernameOrEmail).
		WithArgs("alice", "a@x.com").
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", "hash", sql.NullString{}))

	_, err := svc.Register(context.Background(), service.RegisterInput{
		FullName: "Alice A",
		Email:    "a@x.com",
		Username: "alice",
		Password: "p1",
		Avatar:   &service.MediaFile{Reader: strings.NewReader("img"), Filename: "a.png"},
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if uploader.calls != 0 {
		t.Fatalf("expected no upload on conflict")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_Register_BlankField(t *testing.T) {
	svc, _, _, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	_, err := svc.Register(context.Background(), service.RegisterInput{
		FullName: "Alice A",
		Email:    "   ",
		Username: "alice",
		Password: "p1",
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionService_Register_MissingAvatar(t *testing.T) {
	svc, _, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	mock.ExpectQuery(findByUsernameOrEmail).
		WithArgs("alice", "a@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := svc.Register(context.Background(), service.RegisterInput{
		FullName: "Alice A",
		Email:    "a@x.com",
		Username: "alice",
		Password: "p1",
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_Register_AvatarUploadFails(t *testing.T) {
	svc, _, mock, cleanup := newSessionService(t, &fakeUploader{err: errors.New("bucket unavailable")})
	defer cleanup()

	mock.ExpectQuery(findByUsernameOrEmail).
		WithArgs("alice", "a@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := svc.Register(context.Background(), service.RegisterInput{
		FullName: "Alice A",
		Email:    "a@x.com",
		Username: "alice",
		Password: "p1",
		Avatar:   &service.MediaFile{Reader: strings.NewReader("img"), Filename: "a.png"},
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_Login_ReturnsTokensAndStoresRefresh(t *testing.T) {
	svc, _, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	hashed, _ := bcrypt.GenerateFromPassword([]byte("p1"), bcrypt.DefaultCost)

	mock.ExpectQuery(findByUsernameOrEmail).
		WithArgs("alice", "").
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", string(hashed), sql.NullString{}))
	mock.ExpectExec(setRefreshTokenQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.Login(context.Background(), "alice", "", "p1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected both tokens to be set")
	}
	if result.AccessToken == result.RefreshToken {
		t.Fatalf("expected distinct access and refresh tokens")
	}
	if result.User.ID != 1 {
		t.Fatalf("expected user ID 1, got %d", result.User.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_Login_WrongPassword(t *testing.T) {
	svc, _, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	hashed, _ := bcrypt.GenerateFromPassword([]byte("p1"), bcrypt.DefaultCost)

	mock.ExpectQuery(findByUsernameOrEmail).
		WithArgs("alice", "").
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", string(hashed), sql.NullString{}))

	_, err := svc.Login(context.Background(), "alice", "", "wrong")
	if !apperr.IsKind(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_Login_UnknownUser(t *testing.T) {
	svc, _, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	mock.ExpectQuery(findByUsernameOrEmail).
		WithArgs("ghost", "").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := svc.Login(context.Background(), "ghost", "", "p1")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSessionService_Login_NoIdentifier(t *testing.T) {
	svc, _, _, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	_, err := svc.Login(context.Background(), "", "", "p1")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionService_Refresh_Rotates(t *testing.T) {
	svc, tokens, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	current, err := tokens.IssueRefreshToken(1)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", "hash", sql.NullString{String: current, Valid: true}))
	mock.ExpectExec(rotateRefreshTokenQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(1), current).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pair, err := svc.Refresh(context.Background(), current)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if pair.RefreshToken == "" || pair.RefreshToken == current {
		t.Fatalf("expected a fresh refresh token")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_Refresh_ReusedToken(t *testing.T) {
	svc, tokens, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	// Cryptographically valid, but the slot has since been rotated.
	presented, err := tokens.IssueRefreshToken(1)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", "hash", sql.NullString{String: "rotated-away", Valid: true}))

	_, err = svc.Refresh(context.Background(), presented)
	if !apperr.IsKind(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if err.Error() != "refresh token expired or already used" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_Refresh_AfterLogout(t *testing.T) {
	svc, tokens, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	presented, err := tokens.IssueRefreshToken(1)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", "hash", sql.NullString{}))

	_, err = svc.Refresh(context.Background(), presented)
	if !apperr.IsKind(err, apperr.KindAuth) {
		t.Fatalf("expected auth error after logout, got %v", err)
	}
}

func TestSessionService_Refresh_LostRace(t *testing.T) {
	svc, tokens, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	current, err := tokens.IssueRefreshToken(1)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", "hash", sql.NullString{String: current, Valid: true}))
	mock.ExpectExec(rotateRefreshTokenQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(1), current).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = svc.Refresh(context.Background(), current)
	if !apperr.IsKind(err, apperr.KindAuth) {
		t.Fatalf("expected auth error when rotation loses the race, got %v", err)
	}
}

func TestSessionService_Refresh_MalformedToken(t *testing.T) {
	svc, _, _, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	_, err := svc.Refresh(context.Background(), "not-a-jwt")
	if !apperr.IsKind(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if err.Error() != "invalid refresh token" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestSessionService_Refresh_MissingToken(t *testing.T) {
	svc, _, _, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	_, err := svc.Refresh(context.Background(), "  ")
	if !apperr.IsKind(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestSessionService_Refresh_UnknownUser(t *testing.T) {
	svc, tokens, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	presented, err := tokens.IssueRefreshToken(99)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err = svc.Refresh(context.Background(), presented)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSessionService_Logout_ClearsSlot(t *testing.T) {
	svc, _, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	mock.ExpectExec(setRefreshTokenQuery).
		WithArgs(nil, sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.Logout(context.Background(), 1); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_Logout_Idempotent(t *testing.T) {
	svc, _, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	// Clearing an already-empty slot affects zero rows and still succeeds.
	mock.ExpectExec(setRefreshTokenQuery).
		WithArgs(nil, sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := svc.Logout(context.Background(), 1); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
}

func TestSessionService_ChangePassword_WrongOldPassword(t *testing.T) {
	svc, _, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	hashed, _ := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.DefaultCost)

	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", string(hashed), sql.NullString{}))

	err := svc.ChangePassword(context.Background(), 1, "wrong", "new-pass")
	if !apperr.IsKind(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionService_ChangePassword_Success(t *testing.T) {
	svc, _, mock, cleanup := newSessionService(t, &fakeUploader{})
	defer cleanup()

	hashed, _ := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.DefaultCost)

	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(addUserRow(sqlmock.NewRows(userColumns), 1, "alice", "a@x.com", string(hashed), sql.NullString{}))
	mock.ExpectExec(updatePasswordQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.ChangePassword(context.Background(), 1, "old-pass", "new-pass"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
