package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"watchparty/internal/models"
	"watchparty/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "password123", false},
		{"empty password", "", false},
		{"long password", strings.Repeat("a", 72), false}, // bcrypt max is 72 bytes
		{"too long password", strings.Repeat("a", 73), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("HashPassword() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && hash == "" {
				t.Error("HashPassword() returned empty hash")
			}
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "testpassword123"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		want     bool
	}{
		{"correct password", hash, password, true},
		{"wrong password", hash, "wrongpassword", false},
		{"empty password", hash, "", false},
		{"invalid hash", "invalidhash", password, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyPassword(tt.hash, tt.password); got != tt.want {
				t.Errorf("VerifyPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testIssuer() *Issuer {
	return NewIssuer("access-secret", "refresh-secret", 15*time.Minute, 240*time.Hour)
}

var testUser = &models.User{ID: "u-1", Username: "alice", Email: "alice@example.com", FullName: "Alice Liddell"}

func TestAccessToken_RoundTrip(t *testing.T) {
	iss := testIssuer()
	token, err := iss.AccessToken(testUser)
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	claims, err := iss.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess() error = %v", err)
	}
	if claims.UserID != "u-1" || claims.Username != "alice" || claims.Email != "alice@example.com" || claims.FullName != "Alice Liddell" {
		t.Errorf("ParseAccess() claims = %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 15*time.Minute {
		t.Errorf("access lifetime = %v, want 15m", got)
	}
}

func TestParseAccess_Rejects(t *testing.T) {
	iss := testIssuer()
	good, _ := iss.AccessToken(testUser)
	refresh, _ := iss.RefreshToken("u-1")
	other, _ := NewIssuer("other-secret", "refresh-secret", time.Minute, time.Hour).AccessToken(testUser)

	expiredIss := testIssuer()
	expiredIss.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _ := expiredIss.AccessToken(testUser)

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{UserID: "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, AccessClaims{UserID: "u-1"}).SignedString([]byte("access-secret"))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid", good, nil},
		{"empty", "", ErrMissingCredential},
		{"garbage", "invalid.token.here", ErrInvalidCredential},
		{"wrong secret", other, ErrInvalidCredential},
		{"refresh token as access", refresh, ErrInvalidCredential},
		{"expired", expired, ErrInvalidCredential},
		{"alg none", none, ErrInvalidCredential},
		{"other hmac alg", hs512, ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.ParseAccess(tt.token)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ParseAccess() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseAccess() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRefreshToken_Unique(t *testing.T) {
	iss := testIssuer()
	fixed := time.Now()
	iss.now = func() time.Time { return fixed }

	t1, err := iss.RefreshToken("u-1")
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	t2, _ := iss.RefreshToken("u-1")
	if t1 == t2 {
		t.Error("RefreshToken() should differ for tokens minted in the same instant")
	}
	claims, err := iss.ParseRefresh(t1)
	if err != nil {
		t.Fatalf("ParseRefresh() error = %v", err)
	}
	if claims.UserID != "u-1" || claims.ID == "" {
		t.Errorf("ParseRefresh() claims = %+v", claims)
	}
	if _, err := iss.ParseAccess(t1); err == nil {
		t.Error("refresh token must not verify as an access token")
	}
}

type fakeUsers struct {
	store.Users
	users map[string]*models.User
}

func (f fakeUsers) UserByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func TestGate_Authenticate(t *testing.T) {
	iss := testIssuer()
	gate := NewGate(iss, fakeUsers{users: map[string]*models.User{"u-1": testUser}})

	token, _ := iss.AccessToken(testUser)
	u, err := gate.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if u.ID != "u-1" {
		t.Errorf("Authenticate() user = %s, want u-1", u.ID)
	}

	deleted, _ := iss.AccessToken(&models.User{ID: "gone"})
	if _, err := gate.Authenticate(context.Background(), deleted); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Authenticate() for deleted user error = %v", err)
	}
	if _, err := gate.Authenticate(context.Background(), ""); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Authenticate() for empty token error = %v", err)
	}
}

func TestGate_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := testIssuer()
	gate := NewGate(iss, fakeUsers{users: map[string]*models.User{"u-1": testUser}})
	token, _ := iss.AccessToken(testUser)

	r := gin.New()
	r.GET("/me", gate.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Username)
	})

	tests := []struct {
		name     string
		setup    func(*http.Request)
		wantCode int
	}{
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookie, Value: token}) }, http.StatusOK},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"lowercase bearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, http.StatusOK},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode == http.StatusOK && w.Body.String() != "alice" {
				t.Errorf("body = %q, want alice", w.Body.String())
			}
		})
	}
}

func TestCookiePolicy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	CookiePolicy{Secure: true}.SetSession(c, "a", "r", time.Minute, time.Hour)
	cookies := w.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("cookies = %d, want 2", len(cookies))
	}
	for _, ck := range cookies {
		if !ck.HttpOnly || !ck.Secure || ck.Path != "/" || ck.SameSite != http.SameSiteLaxMode {
			t.Errorf("cookie %s attributes = %+v", ck.Name, ck)
		}
	}
	if cookies[0].Name != AccessCookie || cookies[0].MaxAge != 60 {
		t.Errorf("access cookie = %+v", cookies[0])
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	CookiePolicy{}.ClearSession(c)
	cleared := w.Result().Cookies()
	if len(cleared) != 2 {
		t.Fatalf("cleared cookies = %d, want 2", len(cleared))
	}
	for _, ck := range cleared {
		if ck.Value != "" || ck.MaxAge >= 0 {
			t.Errorf("cleared cookie %s = %+v", ck.Name, ck)
		}
	}
}
