package database

import "sphere/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Parents precede children so foreign keys resolve during AutoMigrate.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Like{},
		&models.Favorite{},
		&models.Follow{},
	}
}
