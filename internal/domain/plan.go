package domain

type SubscriptionName string

const (
	PlanCore SubscriptionName = "CORE_PLAN"
	PlanPlus SubscriptionName = "PLUS_PLAN"
	PlanPro  SubscriptionName = "PRO_PLAN"
)

type RoleName string

const (
	RoleCoreUser RoleName = "CORE_USER"
	RolePlusUser RoleName = "PLUS_USER"
	RoleProUser  RoleName = "PRO_USER"
)

type PermissionName string

const (
	PermissionMarkdownEditor       PermissionName = "editor:markdown-pro"
	PermissionCodeEditor           PermissionName = "editor:code"
	PermissionSpreadsheetEditor    PermissionName = "editor:sheets"
	PermissionTaskEditor           PermissionName = "editor:task-editor"
	PermissionFocusMode            PermissionName = "app:focus-mode"
	PermissionFiles                PermissionName = "app:files"
	PermissionNoteHistory30Days    PermissionName = "server:note-history-30-days"
	PermissionNoteHistory365Days   PermissionName = "server:note-history-365-days"
	PermissionNoteHistoryUnlimited PermissionName = "server:note-history-unlimited"
	PermissionTwoFactorAuth        PermissionName = "server:two-factor-auth"
	PermissionDailyEmailBackup     PermissionName = "server:daily-email-backup"
	PermissionDailyDropboxBackup   PermissionName = "server:daily-dropbox-backup"
	PermissionDailyGDriveBackup    PermissionName = "server:daily-gdrive-backup"
	PermissionDailyOneDriveBackup  PermissionName = "server:daily-onedrive-backup"
	PermissionListedCustomDomain   PermissionName = "listed:custom-domain"
)

type SubscriptionType string

const (
	SubscriptionTypeRegular SubscriptionType = "regular"
	SubscriptionTypeShared  SubscriptionType = "shared"
)

// PlanRoles maps each purchasable plan to the role it grants.
var PlanRoles = map[SubscriptionName]RoleName{
	PlanCore: RoleCoreUser,
	PlanPlus: RolePlusUser,
	PlanPro:  RoleProUser,
}

func RoleForPlan(plan SubscriptionName) (RoleName, bool) {
	role, ok := PlanRoles[plan]
	return role, ok
}

// RolePermissions is the permission set seeded for each role.
var RolePermissions = map[RoleName][]PermissionName{
	RoleCoreUser: {
		PermissionNoteHistory30Days,
	},
	RolePlusUser: {
		PermissionMarkdownEditor,
		PermissionTaskEditor,
		PermissionFocusMode,
		PermissionNoteHistory365Days,
		PermissionTwoFactorAuth,
		PermissionDailyEmailBackup,
	},
	RoleProUser: {
		PermissionMarkdownEditor,
		PermissionCodeEditor,
		PermissionSpreadsheetEditor,
		PermissionTaskEditor,
		PermissionFocusMode,
		PermissionFiles,
		PermissionNoteHistoryUnlimited,
		PermissionTwoFactorAuth,
		PermissionDailyEmailBackup,
		PermissionDailyDropboxBackup,
		PermissionDailyGDriveBackup,
		PermissionDailyOneDriveBackup,
		PermissionListedCustomDomain,
	},
}
