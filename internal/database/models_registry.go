package database

import "kindred/internal/models"

// PersistentModels returns the schema-managed GORM models in dependency order.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Swipe{},
		&models.Match{},
		&models.ConversationRoom{},
		&models.Message{},
		&models.HostSession{},
		&models.HostMessage{},
		&models.Report{},
	}
}
