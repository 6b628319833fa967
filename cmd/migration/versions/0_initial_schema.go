package versions

import (
	"log"

	"fieldkit/platform/schema"

	"gorm.io/gorm"
)

func Migration_0_initial_schema(txn *gorm.DB) error {
	log.Println("creating initial schema")

	if err := txn.Migrator().AutoMigrate(schema.Tables()...); err != nil {
		return err
	}

	log.Println("initial schema created")

	return nil
}
