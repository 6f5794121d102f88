// seed-admin creates or updates the administrative user (username: comprasAdmin).
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
//
// SEED_ADMIN_PASSWORD overrides the default password.
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/models"
	"bitbucket.org/prefsaude/compras_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "comprasAdmin"
	adminName     = "Administrador do Sistema"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "compras@admin2024"
	}
	hashed, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", adminUsername).First(&existing).Error
	switch {
	case err == nil:
		if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"password_hash": hashed,
				"full_name":     adminName,
				"role":          models.UserRoleAdmin,
				"active":        true,
			}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("admin user %q updated (id=%d)\n", adminUsername, existing.ID)
	case err == gorm.ErrRecordNotFound:
		user := models.User{
			Username:     adminUsername,
			FullName:     adminName,
			PasswordHash: hashed,
			Role:         models.UserRoleAdmin,
			Active:       true,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("admin user %q created (id=%d)\n", adminUsername, user.ID)
	default:
		fmt.Fprintf(os.Stderr, "failed to lookup admin user: %v\n", err)
		os.Exit(1)
	}
}
