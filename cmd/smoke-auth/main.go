package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
	"github.com/c-f-an/tov-nextjs-sub002/internal/client"
	"github.com/c-f-an/tov-nextjs-sub002/internal/obs"
)

// Drives register, authenticated call, refresh rotation and logout against a
// running API. The server must run with TOV_COOKIE_SECURE=false when the
// base URL is plain http, otherwise the cookie jar drops the refresh cookie.
func main() {
	logger := obs.NewLogger("info", os.Stderr)
	base := os.Getenv("TOV_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := client.NewSession(base, client.WithLogger(logger))
	if err != nil {
		logger.Fatal("session", zap.Error(err))
	}
	api := client.NewClient(sess)

	email := fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	if _, err := sess.Register(ctx, email, "smoke-password", "Smoke Test"); err != nil {
		logger.Fatal("register", zap.Error(err))
	}

	var me struct {
		User auth.Identity `json:"user"`
	}
	if err := api.GetJSON(ctx, "/auth/me", &me); err != nil {
		logger.Fatal("me", zap.Error(err))
	}
	if me.User.Email != email || me.User.Role != auth.RoleUser {
		logger.Fatal("unexpected identity", zap.Any("user", me.User))
	}

	first := sess.State().AccessToken
	st, err := sess.Refresh(ctx)
	if err != nil {
		logger.Fatal("refresh", zap.Error(err))
	}
	if st.AccessToken == first {
		logger.Fatal("refresh did not rotate the access token")
	}

	var apiErr *client.APIError
	err = api.GetJSON(ctx, "/admin/users/"+me.User.ID, nil)
	if !errors.As(err, &apiErr) || apiErr.Status != 403 {
		logger.Fatal("non-admin reached a privileged route", zap.Error(err))
	}

	sess.Logout(ctx)
	if _, err := sess.Refresh(ctx); !errors.Is(err, client.ErrSessionExpired) {
		logger.Fatal("refresh after logout should fail", zap.Error(err))
	}
	if err := api.GetJSON(ctx, "/auth/me", nil); !errors.Is(err, client.ErrNotAuthenticated) {
		logger.Fatal("anonymous call should not be sent", zap.Error(err))
	}

	fmt.Printf("✅ auth smoke test passed: user=%s\n", me.User.ID)
}
