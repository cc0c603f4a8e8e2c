package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/reportdesk/api/internal/config"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/pkg/statetoken"
	"github.com/reportdesk/api/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiscordAPI(t *testing.T, profile DiscordProfile) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"discord-access","refresh_token":"discord-refresh","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer discord-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscordService_LoginFlow(t *testing.T) {
	ctx := context.Background()
	s := setupServices(t)

	api := newDiscordAPI(t, DiscordProfile{ID: "1234", Username: "ghost", GlobalName: "Ghost", Avatar: "abc"})
	cfg := config.DiscordConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/api/auth/discord/callback",
		Scopes:       []string{"identify"},
		APIBaseURL:   api.URL,
	}
	discord := NewDiscordService(cfg, s.db, s.roles, statetoken.NewIssuer("state-secret"))

	authURL, err := discord.AuthURL()
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "client", parsed.Query().Get("client_id"))

	t.Run("first login creates a user needing registration", func(t *testing.T) {
		user, err := discord.Complete(ctx, state, "good-code")
		require.NoError(t, err)
		assert.Equal(t, "1234", user.DiscordID)
		assert.Equal(t, "Ghost", user.DisplayName)
		assert.Equal(t, models.RoleVisitor, user.Role)
		assert.Equal(t, models.UserStatusNeedsRegistration, user.Status)
		require.NotNil(t, user.AvatarURL)
		assert.Contains(t, *user.AvatarURL, "/avatars/1234/abc.png")

		plain, err := utils.DecryptAESGCM(user.DiscordAccessToken)
		require.NoError(t, err)
		assert.Equal(t, "discord-access", plain)
	})

	t.Run("state cannot be replayed", func(t *testing.T) {
		_, err := discord.Complete(ctx, state, "good-code")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("bad code is unauthorized", func(t *testing.T) {
		fresh, err := discord.States.Generate("discord")
		require.NoError(t, err)
		_, err = discord.Complete(ctx, fresh, "bad-code")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("second login reuses the record", func(t *testing.T) {
		fresh, err := discord.States.Generate("discord")
		require.NoError(t, err)
		user, err := discord.Complete(ctx, fresh, "good-code")
		require.NoError(t, err)

		var count int64
		require.NoError(t, s.db.Model(&models.User{}).Where("discord_id = ?", "1234").Count(&count).Error)
		assert.EqualValues(t, 1, count)
		assert.Equal(t, "ghost", user.Username)
	})

	t.Run("new users get the registry default role", func(t *testing.T) {
		_, err := s.roles.Create(ctx, RoleInput{Name: "Recruit", IsDefault: true})
		require.NoError(t, err)

		user, err := discord.Upsert(ctx, &DiscordProfile{ID: "5678", Username: "rookie"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "Recruit", user.Role)
		assert.Nil(t, user.AvatarURL)
	})
}

func TestDiscordService_Disabled(t *testing.T) {
	s := setupServices(t)
	discord := NewDiscordService(config.DiscordConfig{}, s.db, s.roles, statetoken.NewIssuer("x"))

	_, err := discord.AuthURL()
	assert.ErrorIs(t, err, ErrBadRequest)
}
