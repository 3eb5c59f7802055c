package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/loaninneed/attribution/internal/config"
	"github.com/loaninneed/attribution/internal/crypto"
	"github.com/loaninneed/attribution/internal/db"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/loaninneed/attribution/internal/repository"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo partners",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo partners...")

		if err := seedPartners(sqlDB, cfg.Attribution.MasterKey); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedPartners inserts deterministic demo partners (idempotent on api_key).
// Signing secrets are freshly generated and stored encrypted.
func seedPartners(dbx *sqlx.DB, masterKey string) error {
	vault := crypto.NewVault(masterKey)
	repo := repository.NewPartnersRepository(dbx)

	demo := []struct {
		name   string
		email  string
		phone  string
		apiKey string
		status model.PartnerStatus
	}{
		{"Acme Finance DSA", "acme@example.com", "+911111111111", "11111111111111111111111111111111", model.PartnerActive},
		{"Foobar Affiliates", "foobar@example.com", "+912222222222", "22222222222222222222222222222222", model.PartnerActive},
		{"Beta Channel BC", "beta@example.com", "+913333333333", "33333333333333333333333333333333", model.PartnerPending},
		{"Suspended Inc", "suspended@example.com", "+914444444444", "44444444444444444444444444444444", model.PartnerSuspended},
	}

	ctx := context.Background()
	for _, d := range demo {
		existing, err := repo.GetByAPIKey(ctx, d.apiKey)
		if err != nil {
			return fmt.Errorf("seed lookup %s: %w", d.name, err)
		}
		if existing != nil {
			continue
		}

		secret, err := crypto.NewSecret()
		if err != nil {
			return err
		}
		encrypted, err := vault.Encrypt(secret)
		if err != nil {
			return fmt.Errorf("encrypt secret for %s: %w", d.name, err)
		}

		p := &model.Partner{
			Name:      d.name,
			Email:     d.email,
			Phone:     d.phone,
			APIKey:    d.apiKey,
			Status:    d.status,
			SecretKey: &encrypted,
		}
		id, err := repo.Insert(ctx, p)
		if err != nil {
			return fmt.Errorf("seed insert %s: %w", d.name, err)
		}
		log.Printf("  partner %d: %s (%s)", id, d.name, d.status)
	}

	return nil
}
