package share

import (
	"log"

	"github.com/hexflows/tripflow-backend/internal/db"
)

func Init() {
	if err := db.EnsureSchema(db.DB, "share"); err != nil {
		log.Fatal("Failed to ensure schema share: ", err)
	}

	if err := db.DB.AutoMigrate(&Link{}); err != nil {
		log.Fatal("Failed to auto-migrate share tables: ", err)
	}

	log.Println("Share module initialized")
}
