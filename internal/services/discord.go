package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/reportdesk/api/internal/config"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/statetoken"
	"github.com/reportdesk/api/pkg/utils"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	discordProvider     = "discord"
	discordAuthorizeURL = "https://discord.com/oauth2/authorize"
	discordCDNBaseURL   = "https://cdn.discordapp.com"
)

type DiscordProfile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
}

func (p DiscordProfile) AvatarURL() *string {
	if p.Avatar == "" {
		return nil
	}
	url := fmt.Sprintf("%s/avatars/%s/%s.png", discordCDNBaseURL, p.ID, p.Avatar)
	return &url
}

// DiscordService runs the Discord OAuth2 authorization-code flow and keeps the local user
// record in sync with the Discord profile.
type DiscordService struct {
	Cfg    config.DiscordConfig
	DB     *gorm.DB
	Roles  *RoleService
	States *statetoken.Issuer
}

func NewDiscordService(cfg config.DiscordConfig, db *gorm.DB, roles *RoleService, states *statetoken.Issuer) *DiscordService {
	return &DiscordService{Cfg: cfg, DB: db, Roles: roles, States: states}
}

func (s *DiscordService) oauthConfig() *oauth2.Config {
	base := strings.TrimRight(s.Cfg.APIBaseURL, "/")
	return &oauth2.Config{
		ClientID:     s.Cfg.ClientID,
		ClientSecret: s.Cfg.ClientSecret,
		RedirectURL:  s.Cfg.RedirectURL,
		Scopes:       s.Cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   discordAuthorizeURL,
			TokenURL:  base + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthURL returns the Discord consent URL carrying a fresh signed state.
func (s *DiscordService) AuthURL() (string, error) {
	if !s.Cfg.Enabled() {
		return "", BadRequest("discord login is not configured")
	}
	state, err := s.States.Generate(discordProvider)
	if err != nil {
		return "", err
	}
	return s.oauthConfig().AuthCodeURL(state), nil
}

// Complete validates the callback state, exchanges the code and upserts the user.
func (s *DiscordService) Complete(ctx context.Context, state, code string) (*models.User, error) {
	if code == "" || state == "" {
		return nil, BadRequest("missing code or state")
	}

	parsed, err := s.States.Consume(state)
	if err != nil {
		logger.Warn("discord_state_rejected", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, newError(ErrUnauthorized, "invalid or expired login state")
	}
	if parsed.Provider != discordProvider {
		return nil, newError(ErrUnauthorized, "invalid login state")
	}

	oauthCfg := s.oauthConfig()
	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		logger.Warn("discord_exchange_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, newError(ErrUnauthorized, "failed to exchange code for token")
	}

	profile, err := s.FetchProfile(ctx, oauthCfg.Client(ctx, token))
	if err != nil {
		return nil, err
	}

	return s.Upsert(ctx, profile, token)
}

func (s *DiscordService) FetchProfile(ctx context.Context, client *http.Client) (*DiscordProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.Cfg.APIBaseURL, "/")+"/users/@me", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("discord api returned status %d: %s", resp.StatusCode, string(body))
	}

	var profile DiscordProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	if profile.ID == "" {
		return nil, errors.New("discord profile has no id")
	}
	return &profile, nil
}

// Upsert creates the user on first sign-in with the default role, or refreshes the
// Discord-owned fields on later ones. Tokens are stored encrypted.
func (s *DiscordService) Upsert(ctx context.Context, profile *DiscordProfile, token *oauth2.Token) (*models.User, error) {
	accessToken, refreshToken := "", ""
	if token != nil {
		var err error
		if accessToken, err = utils.EncryptAESGCM(token.AccessToken); err != nil {
			return nil, err
		}
		if token.RefreshToken != "" {
			if refreshToken, err = utils.EncryptAESGCM(token.RefreshToken); err != nil {
				return nil, err
			}
		}
	}

	var user models.User
	err := s.DB.WithContext(ctx).Where("discord_id = ?", profile.ID).First(&user).Error
	if err == nil {
		updates := map[string]interface{}{
			"username":             profile.Username,
			"avatar_url":           profile.AvatarURL(),
			"discord_access_token": accessToken,
		}
		if refreshToken != "" {
			updates["discord_refresh_token"] = refreshToken
		}
		if err := s.DB.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
		user.Username = profile.Username
		user.AvatarURL = profile.AvatarURL()
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		DiscordID:           profile.ID,
		Username:            profile.Username,
		DisplayName:         profile.GlobalName,
		AvatarURL:           profile.AvatarURL(),
		Role:                s.Roles.DefaultRoleName(ctx),
		Status:              models.UserStatusNeedsRegistration,
		DiscordAccessToken:  accessToken,
		DiscordRefreshToken: refreshToken,
	}
	if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
		// A concurrent first sign-in may have created the row already.
		if isUniqueViolation(err) {
			var existing models.User
			if findErr := s.DB.WithContext(ctx).Where("discord_id = ?", profile.ID).First(&existing).Error; findErr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}

	logger.InfoWithUser(user.ID.String(), "user_first_login", map[string]interface{}{
		"role": user.Role,
	})
	return &user, nil
}
