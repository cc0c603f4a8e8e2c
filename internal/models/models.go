package models

// All returns every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Role{},
		&Folder{},
		&FolderMember{},
		&Report{},
		&Mission{},
		&Notification{},
		&AuditLog{},
		&Upload{},
	}
}
