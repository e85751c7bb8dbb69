package domain

import "time"

type User struct {
	UUID              string    `gorm:"primaryKey;size:36" json:"uuid"`
	Email             string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	EncryptedPassword string    `gorm:"size:255;not null" json:"-"`
	ServerKeySalt     string    `gorm:"size:64;not null" json:"-"`
	Roles             []Role    `gorm:"many2many:user_roles" json:"roles,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (u *User) HasRole(name RoleName) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, string(r.Name))
	}
	return names
}

type Role struct {
	Name        RoleName     `gorm:"primaryKey;size:64" json:"name"`
	Permissions []Permission `gorm:"many2many:role_permissions" json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Permission struct {
	Name      PermissionName `gorm:"primaryKey;size:128" json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
