package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/repository"
)

// SettingView is the client facing projection of a setting.
type SettingView struct {
	UUID      string             `json:"uuid"`
	Name      domain.SettingName `json:"name"`
	Value     *string            `json:"value"`
	Sensitive bool               `json:"sensitive"`
	CreatedAt int64              `json:"created_at"`
	UpdatedAt int64              `json:"updated_at"`
}

func projectSetting(s *domain.Setting) SettingView {
	return SettingView{
		UUID:      s.UUID,
		Name:      s.Name,
		Value:     s.Value,
		Sensitive: s.Sensitive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

type UpdateSettingResult struct {
	Success      bool
	StatusCode   int
	ErrorMessage string
	Setting      *SettingView
}

type GetSettingsResult struct {
	UserUUID string
	Settings []SettingView
}

type GetSettingResult struct {
	Success      bool
	UserUUID     string
	Setting      *SettingView
	Sensitive    bool
	ErrorMessage string
}

// SettingUseCases exposes the setting store to clients.
type SettingUseCases struct {
	settings *SettingService
	users    repository.UserRepository
	timeout  opTimeout
}

func NewSettingUseCases(settings *SettingService, users repository.UserRepository) *SettingUseCases {
	return &SettingUseCases{settings: settings, users: users, timeout: settings.timeout}
}

func (u *SettingUseCases) UpdateSetting(ctx context.Context, userUUID string, props SettingProps) (UpdateSettingResult, error) {
	lookupCtx, cancel := u.timeout.bound(ctx)
	user, err := u.users.FindByUUID(lookupCtx, userUUID)
	cancel()
	if errors.Is(err, repository.ErrUserNotFound) {
		return UpdateSettingResult{
			StatusCode:   http.StatusBadRequest,
			ErrorMessage: fmt.Sprintf("User %s not found.", userUUID),
		}, nil
	}
	if err != nil {
		return UpdateSettingResult{}, err
	}

	if perm := DescribeSetting(props.Name).Permission; perm != "" && !holdsPermission(user, perm) {
		return UpdateSettingResult{
			StatusCode:   http.StatusBadRequest,
			ErrorMessage: fmt.Sprintf("User %s is not permitted to change the setting.", userUUID),
		}, nil
	}

	res, err := u.settings.CreateOrReplace(ctx, user, props)
	if err != nil {
		return UpdateSettingResult{}, err
	}
	code := http.StatusNoContent
	if res.Status == StatusCreated {
		code = http.StatusCreated
	}
	view := projectSetting(res.Setting)
	view.Value = nil
	return UpdateSettingResult{Success: true, StatusCode: code, Setting: &view}, nil
}

// GetSettings leaves sensitive settings out unless allowSensitive is set.
func (u *SettingUseCases) GetSettings(ctx context.Context, userUUID string, allowSensitive bool) (GetSettingsResult, error) {
	settings, err := u.settings.FindAllForUser(ctx, userUUID)
	if err != nil && !errors.Is(err, ErrSettingNotFound) {
		return GetSettingsResult{}, err
	}
	views := make([]SettingView, 0, len(settings))
	for i := range settings {
		if settings[i].Sensitive && !allowSensitive {
			continue
		}
		views = append(views, projectSetting(&settings[i]))
	}
	return GetSettingsResult{UserUUID: userUUID, Settings: views}, nil
}

func (u *SettingUseCases) GetSetting(ctx context.Context, userUUID string, name domain.SettingName, allowSensitive bool) (GetSettingResult, error) {
	setting, err := u.settings.FindSetting(ctx, FindSettingQuery{UserUUID: userUUID, SettingName: name})
	if errors.Is(err, ErrSettingNotFound) {
		return GetSettingResult{
			UserUUID:     userUUID,
			ErrorMessage: fmt.Sprintf("Setting %s for user %s not found!", name, userUUID),
		}, nil
	}
	if err != nil {
		return GetSettingResult{}, err
	}
	if setting.Sensitive && !allowSensitive {
		return GetSettingResult{Success: true, UserUUID: userUUID, Sensitive: true}, nil
	}
	view := projectSetting(setting)
	return GetSettingResult{Success: true, UserUUID: userUUID, Setting: &view}, nil
}

func (u *SettingUseCases) DeleteSetting(ctx context.Context, userUUID string, name domain.SettingName) error {
	return u.settings.DeleteSetting(ctx, userUUID, name)
}
