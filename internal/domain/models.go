package domain

// AllModels lists the gorm models in migration order.
func AllModels() []any {
	return []any{
		&Permission{},
		&Role{},
		&User{},
		&Session{},
		&RevokedSession{},
		&Setting{},
		&UserSubscription{},
		&SubscriptionSetting{},
		&OfflineUserSubscription{},
		&SharedSubscriptionInvitation{},
	}
}
