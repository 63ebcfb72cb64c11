package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/testutil"
	"github.com/google/uuid"
)

func TestAuthenticateUser_NewUser(t *testing.T) {
	userRepo := testutil.NewMockUserRepository()
	service := NewAuthService(userRepo)

	auth0ID := "auth0|12345"
	email := "test@example.com"
	name := "Test User"

	result, err := service.AuthenticateUser(context.Background(), auth0ID, email, &name, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !result.IsNewUser {
		t.Error("Expected IsNewUser to be true for new user")
	}

	if result.User.Auth0ID != auth0ID {
		t.Errorf("Expected auth0ID %s, got %s", auth0ID, result.User.Auth0ID)
	}

	if result.User.Email != email {
		t.Errorf("Expected email %s, got %s", email, result.User.Email)
	}

	if result.User.Currency != domain.DefaultCurrency {
		t.Errorf("Expected currency %s, got %s", domain.DefaultCurrency, result.User.Currency)
	}
}

func TestAuthenticateUser_ExistingUser(t *testing.T) {
	userRepo := testutil.NewMockUserRepository()
	service := NewAuthService(userRepo)

	auth0ID := "auth0|existing"
	name := "Existing User"
	existingUser := &domain.User{
		ID:       uuid.New(),
		Auth0ID:  auth0ID,
		Email:    "existing@example.com",
		Name:     &name,
		Currency: "EUR",
	}
	userRepo.AddUser(existingUser)

	result, err := service.AuthenticateUser(context.Background(), auth0ID, "existing@example.com", &name, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.IsNewUser {
		t.Error("Expected IsNewUser to be false for existing user")
	}

	if result.User.ID != existingUser.ID {
		t.Errorf("Expected user ID %s, got %s", existingUser.ID, result.User.ID)
	}
}

func TestAuthenticateUser_CreateError(t *testing.T) {
	userRepo := testutil.NewMockUserRepository()
	createErr := errors.New("database unavailable")
	userRepo.CreateFn = func(auth0ID, email string, name, pictureURL *string) (*domain.User, error) {
		return nil, createErr
	}
	service := NewAuthService(userRepo)

	_, err := service.AuthenticateUser(context.Background(), "auth0|broken", "b@example.com", nil, nil)
	if !errors.Is(err, createErr) {
		t.Errorf("Expected create error, got %v", err)
	}
}

func TestGetUserIDByAuth0ID(t *testing.T) {
	userRepo := testutil.NewMockUserRepository()
	service := NewAuthService(userRepo)

	user := &domain.User{ID: uuid.New(), Auth0ID: "auth0|lookup"}
	userRepo.AddUser(user)

	id, err := service.GetUserIDByAuth0ID(context.Background(), "auth0|lookup")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id != user.ID {
		t.Errorf("Expected %s, got %s", user.ID, id)
	}

	_, err = service.GetUserIDByAuth0ID(context.Background(), "auth0|missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}
