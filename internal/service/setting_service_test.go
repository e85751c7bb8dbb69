package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/event"
)

func TestCreateOrReplaceKeepsUUID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "settings@example.com").User

	first, err := f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingMuteSignInEmails, "muted"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Status != StatusCreated {
		t.Fatalf("first write status %s", first.Status)
	}

	f.clock.Advance(time.Second)
	second, err := f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingMuteSignInEmails, "not_muted"))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if second.Status != StatusReplaced {
		t.Fatalf("second write status %s", second.Status)
	}
	if second.Setting.UUID != first.Setting.UUID {
		t.Fatalf("replace changed uuid %s -> %s", first.Setting.UUID, second.Setting.UUID)
	}

	all, err := f.settings.FindAllForUser(ctx, user.UUID)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 1 || derefString(all[0].Value) != "not_muted" {
		t.Fatalf("expected a single replaced row, got %+v", all)
	}
}

func TestEncryptedSettingRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "crypto@example.com").User

	res, err := f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingExtensionKey, "s3cret"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var raw domain.Setting
	if err := f.db.Where("uuid = ?", res.Setting.UUID).First(&raw).Error; err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if derefString(raw.Value) == "s3cret" || raw.ServerEncryptionVersion != domain.EncryptionVersionDefault {
		t.Fatalf("value stored in the clear: %+v", raw)
	}

	got, err := f.settings.FindSetting(ctx, FindSettingQuery{UserUUID: user.UUID, SettingName: domain.SettingExtensionKey})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if derefString(got.Value) != "s3cret" {
		t.Fatalf("decrypted %q", derefString(got.Value))
	}
}

func TestCreateOrReplaceRejectsUnknownEncryptionVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "version@example.com").User

	props := NewSettingProps(domain.SettingExtensionKey, "v")
	props.ServerEncryptionVersion = 7
	if _, err := f.settings.CreateOrReplace(ctx, user, props); !errors.Is(err, ErrUnsupportedEncryptionVersion) {
		t.Fatalf("got %v want %v", err, ErrUnsupportedEncryptionVersion)
	}
	all, err := f.settings.FindAllForUser(ctx, user.UUID)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("nothing should be written, got %d rows", len(all))
	}
}

func TestFindSettingByUUIDIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com").User
	bob := f.register(t, "bob@example.com").User

	res, err := f.settings.CreateOrReplace(ctx, alice, NewSettingProps(domain.SettingMuteSignInEmails, "muted"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = f.settings.FindSetting(ctx, FindSettingQuery{UserUUID: bob.UUID, SettingUUID: res.Setting.UUID})
	if !errors.Is(err, ErrSettingNotFound) {
		t.Fatalf("got %v want %v", err, ErrSettingNotFound)
	}
}

func TestUpdateSettingChecksPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uc := NewSettingUseCases(f.settings, f.users)
	user := f.register(t, "perm@example.com").User

	res, err := uc.UpdateSetting(ctx, user.UUID, NewSettingProps(domain.SettingMfaSecret, "JBSWY3DPEHPK3PXP"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Success || res.StatusCode != http.StatusBadRequest {
		t.Fatalf("core user must not set MFA: %+v", res)
	}

	res, err = uc.UpdateSetting(ctx, "no-such-user", NewSettingProps(domain.SettingMuteSignInEmails, "muted"))
	if err != nil {
		t.Fatalf("update missing user: %v", err)
	}
	if res.Success || res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected result for unknown user: %+v", res)
	}

	f.purchase(t, "perm@example.com", domain.PlanPlus, 5, f.clock.Now().Add(24*time.Hour))
	res, err = uc.UpdateSetting(ctx, user.UUID, NewSettingProps(domain.SettingMfaSecret, "JBSWY3DPEHPK3PXP"))
	if err != nil {
		t.Fatalf("update after purchase: %v", err)
	}
	if !res.Success || res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %+v", res)
	}
	if res.Setting.Value != nil {
		t.Fatal("update response must not echo the value")
	}
	res, err = uc.UpdateSetting(ctx, user.UUID, NewSettingProps(domain.SettingMfaSecret, "KRSXG5CTMVRXEZLU"))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.StatusCode)
	}
}

func TestGetSettingsHidesSensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uc := NewSettingUseCases(f.settings, f.users)
	user := f.register(t, "hidden@example.com").User

	for _, props := range []SettingProps{
		NewSettingProps(domain.SettingMuteSignInEmails, "muted"),
		NewSettingProps(domain.SettingListedAuthorSecrets, "[]"),
	} {
		if _, err := f.settings.CreateOrReplace(ctx, user, props); err != nil {
			t.Fatalf("create %s: %v", props.Name, err)
		}
	}

	list, err := uc.GetSettings(ctx, user.UUID, false)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if len(list.Settings) != 1 || list.Settings[0].Name != domain.SettingMuteSignInEmails {
		t.Fatalf("sensitive settings leaked: %+v", list.Settings)
	}
	list, err = uc.GetSettings(ctx, user.UUID, true)
	if err != nil {
		t.Fatalf("get settings with sensitive: %v", err)
	}
	if len(list.Settings) != 2 {
		t.Fatalf("expected both settings, got %d", len(list.Settings))
	}

	one, err := uc.GetSetting(ctx, user.UUID, domain.SettingListedAuthorSecrets, false)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if !one.Success || !one.Sensitive || one.Setting != nil {
		t.Fatalf("sensitive setting should be withheld: %+v", one)
	}
	missing, err := uc.GetSetting(ctx, user.UUID, domain.SettingExtensionKey, true)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing.Success || missing.ErrorMessage == "" {
		t.Fatalf("expected not found, got %+v", missing)
	}
}

func TestDeleteMFASecretKeepsRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "clear@example.com").User

	created, err := f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingMfaSecret, "JBSWY3DPEHPK3PXP"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.settings.DeleteSetting(ctx, user.UUID, domain.SettingMfaSecret); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := f.settings.FindSetting(ctx, FindSettingQuery{UserUUID: user.UUID, SettingName: domain.SettingMfaSecret})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.UUID != created.Setting.UUID || got.Value != nil {
		t.Fatalf("expected cleared row, got %+v", got)
	}

	if _, err := f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingMuteSignInEmails, "muted")); err != nil {
		t.Fatalf("create mute: %v", err)
	}
	if err := f.settings.DeleteSetting(ctx, user.UUID, domain.SettingMuteSignInEmails); err != nil {
		t.Fatalf("delete mute: %v", err)
	}
	if err := f.settings.DeleteSetting(ctx, user.UUID, domain.SettingMuteSignInEmails); !errors.Is(err, ErrSettingNotFound) {
		t.Fatalf("got %v want %v", err, ErrSettingNotFound)
	}
}

func TestBackupSettingsRequestBackups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "backup@example.com").User

	mute, err := f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingMuteFailedCloudBackupsEmails, "muted"))
	if err != nil {
		t.Fatalf("create mute: %v", err)
	}
	if _, err := f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingEmailBackupFrequency, "daily")); err != nil {
		t.Fatalf("create email backup: %v", err)
	}
	if _, err := f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingDropboxBackupToken, "dbx-token")); err != nil {
		t.Fatalf("create dropbox token: %v", err)
	}
	if _, err := f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingDropboxBackupToken, "dbx-token-2")); err != nil {
		t.Fatalf("replace dropbox token: %v", err)
	}

	emails := f.publisher.OfType(event.TypeEmailBackupRequested)
	if len(emails) != 1 {
		t.Fatalf("expected one email backup request, got %d", len(emails))
	}
	var emailPayload event.EmailBackupRequestedPayload
	if err := emails[0].Decode(&emailPayload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if emailPayload.UserHasEmailsMuted {
		t.Fatal("email backups were not muted")
	}

	clouds := f.publisher.OfType(event.TypeCloudBackupRequested)
	if len(clouds) != 1 {
		t.Fatalf("only the first token write requests a backup, got %d", len(clouds))
	}
	var cloudPayload event.CloudBackupRequestedPayload
	if err := clouds[0].Decode(&cloudPayload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cloudPayload.CloudProvider != "DROPBOX" || !cloudPayload.UserHasEmailsMuted || cloudPayload.MuteEmailsSettingUUID != mute.Setting.UUID {
		t.Fatalf("unexpected cloud payload %+v", cloudPayload)
	}
}

func TestConcurrentCreateOrReplaceKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	f.serialize(t)
	ctx := context.Background()
	user := f.register(t, "busy@example.com").User

	const writers = 4
	results := make([]*SettingWriteResult, writers)
	errs := make([]error, writers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.settings.CreateOrReplace(ctx, user, NewSettingProps(domain.SettingMuteSignInEmails, fmt.Sprintf("value-%d", i)))
		}(i)
	}
	close(start)
	wg.Wait()

	created := 0
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		switch results[i].Status {
		case StatusCreated:
			created++
		case StatusReplaced:
		default:
			t.Fatalf("writer %d: unexpected status %s", i, results[i].Status)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one create, got %d", created)
	}

	all, err := f.settings.FindAllForUser(ctx, user.UUID)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single row, got %d", len(all))
	}
	for i := 0; i < writers; i++ {
		if results[i].Setting.UUID != all[0].UUID {
			t.Fatalf("writer %d reported uuid %s, stored row is %s", i, results[i].Setting.UUID, all[0].UUID)
		}
	}
}
