package migration

import (
	billingdomain "github.com/flowforge/flowforge/internal/billing/domain"
	catalogdomain "github.com/flowforge/flowforge/internal/catalog/domain"
	"github.com/flowforge/flowforge/internal/config"
	conversationdomain "github.com/flowforge/flowforge/internal/conversation/domain"
	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	"github.com/flowforge/flowforge/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql are dev conveniences, AutoMigrate is enough there.
			if err := conn.AutoMigrate(
				&creditdomain.Entitlement{},
				&creditdomain.CreditHistoryEntry{},
				&billingdomain.ProcessedEvent{},
				&catalogdomain.ExemplarPattern{},
				&catalogdomain.Tip{},
				&catalogdomain.TemplateSkeleton{},
				&conversationdomain.Conversation{},
				&conversationdomain.Message{},
				&conversationdomain.GenerationRecord{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureCatalog(conn)
	}),
)
