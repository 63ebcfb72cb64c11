package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/dafibh/tally/tally-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newProfileFixture() (*ProfileHandler, *testutil.MockUserRepository, uuid.UUID) {
	userRepo := testutil.NewMockUserRepository()
	name := "Sam"
	userID := uuid.New()
	userRepo.AddUser(&domain.User{
		ID:       userID,
		Auth0ID:  "auth0|sam",
		Email:    "sam@example.com",
		Name:     &name,
		Currency: "USD",
	})
	return NewProfileHandler(service.NewProfileService(userRepo)), userRepo, userID
}

func TestGetProfile_Success(t *testing.T) {
	e := echo.New()
	handler, _, userID := newProfileFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	middleware.SetUserID(c, userID)

	if err := handler.GetProfile(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response UserResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response.ID != userID.String() {
		t.Errorf("Expected id %s, got %s", userID, response.ID)
	}
	if response.Email != "sam@example.com" {
		t.Errorf("Expected email 'sam@example.com', got %s", response.Email)
	}
}

func TestGetProfile_UserNotFound(t *testing.T) {
	e := echo.New()
	handler, _, _ := newProfileFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	middleware.SetUserID(c, uuid.New())

	if err := handler.GetProfile(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestUpdateProfile_Success(t *testing.T) {
	e := echo.New()
	handler, userRepo, userID := newProfileFixture()

	body := `{"name":"  Samantha ","currency":"eur"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/profile", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	middleware.SetUserID(c, userID)

	if err := handler.UpdateProfile(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response UserResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response.Name == nil || *response.Name != "Samantha" {
		t.Errorf("Expected trimmed name 'Samantha', got %v", response.Name)
	}
	if response.Currency != "EUR" {
		t.Errorf("Expected currency 'EUR', got %s", response.Currency)
	}

	stored := userRepo.ByID[userID]
	if stored.Currency != "EUR" {
		t.Errorf("Expected stored currency 'EUR', got %s", stored.Currency)
	}
}

func TestUpdateProfile_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty body", `{}`, "name"},
		{"blank name", `{"name":"   "}`, "name"},
		{"name too long", `{"name":"` + strings.Repeat("a", 256) + `"}`, "name"},
		{"bad currency", `{"currency":"dollars"}`, "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			handler, _, userID := newProfileFixture()

			req := httptest.NewRequest(http.MethodPut, "/api/v1/profile", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			middleware.SetUserID(c, userID)

			if err := handler.UpdateProfile(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", rec.Code)
			}

			var problem ProblemDetails
			if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if len(problem.Errors) == 0 || problem.Errors[0].Field != tt.field {
				t.Errorf("Expected %s field error, got %+v", tt.field, problem.Errors)
			}
		})
	}
}

func TestUpdateProfile_UserNotFound(t *testing.T) {
	e := echo.New()
	handler, _, _ := newProfileFixture()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/profile", strings.NewReader(`{"name":"Ghost"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	middleware.SetUserID(c, uuid.New())

	if err := handler.UpdateProfile(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}
