package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pagecart/pagecart/internal/config"
	"github.com/pagecart/pagecart/internal/models"
	"github.com/pagecart/pagecart/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthServiceTest(t *testing.T) (*AuthService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:auth_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Admin{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	cfg := &config.Config{}
	cfg.JWT.SecretKey = "test-secret-key-for-auth-service-tests"
	cfg.JWT.ExpireHours = 24
	return NewAuthService(cfg, repository.NewAdminRepository(db)), db
}

func createTestAdmin(t *testing.T, svc *AuthService, db *gorm.DB, username, password string) *models.Admin {
	t.Helper()
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	admin := &models.Admin{
		Username:     username,
		PasswordHash: hash,
	}
	if err := db.Create(admin).Error; err != nil {
		t.Fatalf("create admin failed: %v", err)
	}
	return admin
}

func TestAuthServiceLogin(t *testing.T) {
	svc, db := setupAuthServiceTest(t)
	createTestAdmin(t, svc, db, "admin", "correct-password")

	admin, token, expiresAt, err := svc.Login("admin", "correct-password")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}
	if admin.LastLoginAt == nil {
		t.Fatalf("expected last_login_at to be updated")
	}

	claims, err := svc.ParseJWT(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.AdminID != admin.ID || claims.Username != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestAuthServiceLoginInvalidCredentials(t *testing.T) {
	svc, db := setupAuthServiceTest(t)
	createTestAdmin(t, svc, db, "admin", "correct-password")

	if _, _, _, err := svc.Login("admin", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got: %v", err)
	}
	if _, _, _, err := svc.Login("nobody", "correct-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got: %v", err)
	}
}

func TestAuthServiceParseJWTRejectsTampering(t *testing.T) {
	svc, db := setupAuthServiceTest(t)
	admin := createTestAdmin(t, svc, db, "admin", "correct-password")

	token, _, err := svc.GenerateJWT(admin)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	if _, err := svc.ParseJWT(token + "x"); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}

	other := NewAuthService(func() *config.Config {
		cfg := &config.Config{}
		cfg.JWT.SecretKey = "a-different-secret-key-entirely"
		cfg.JWT.ExpireHours = 24
		return cfg
	}(), nil)
	if _, err := other.ParseJWT(token); err == nil {
		t.Fatalf("expected token signed with another key to be rejected")
	}
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, db := setupAuthServiceTest(t)
	admin := createTestAdmin(t, svc, db, "admin", "correct-password")

	if err := svc.ChangePassword(admin.ID, "wrong-password", "new-password-123"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected invalid password for wrong old password, got: %v", err)
	}
	if err := svc.ChangePassword(admin.ID, "correct-password", "short"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected invalid password for short new password, got: %v", err)
	}
	if err := svc.ChangePassword(admin.ID, "correct-password", "new-password-123"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, _, _, err := svc.Login("admin", "new-password-123"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if err := svc.ChangePassword(999, "x", "new-password-123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown admin, got: %v", err)
	}
}
