/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/db"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// seedCmd represents the seed command.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed initial data",
}

// seedAdminCmd creates the bootstrap admin account. Self-service registration
// only produces regular users and user creation is admin-gated, so the first
// admin has to come from here.
var seedAdminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Create the initial admin account from ADMIN_* env vars",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if cfg.Admin.Password == "" {
			return errors.New("ADMIN_PASSWORD is required")
		}
		if len(cfg.Admin.Password) < 8 {
			return errors.New("ADMIN_PASSWORD must be at least 8 characters")
		}

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		users := store.NewUserRepository(dbConn)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if existing, err := users.GetByEmail(ctx, cfg.Admin.Email); err == nil {
			fmt.Printf("admin already exists (id %d), nothing to do\n", existing.ID)
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), cfg.Auth.BcryptCost)
		if err != nil {
			return err
		}

		admin, err := users.Create(ctx, types.User{
			Name:         cfg.Admin.Name,
			Email:        cfg.Admin.Email,
			Role:         types.RoleAdmin,
			PasswordHash: string(hash),
		})
		if err != nil {
			return err
		}

		fmt.Printf("created admin %q (id %d)\n", admin.Email, admin.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.AddCommand(seedAdminCmd)
}
