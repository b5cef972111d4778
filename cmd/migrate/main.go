package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"fctarget/adapters/sqlstore"
)

func main() {
	_ = godotenv.Load()

	driver, dsn := sqlstore.DriverPostgres, os.Getenv("DATABASE_URL")
	switch len(os.Args) {
	case 1:
	case 3:
		driver, dsn = os.Args[1], os.Args[2]
	default:
		log.Fatal("Usage: migrate [<postgres|sqlite> <dsn>]  (default: postgres $DATABASE_URL)")
	}
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sqlstore.Open(driver, dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	applied, err := sqlstore.NewMigrator(db).Up(context.Background())
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if len(applied) == 0 {
		log.Println("Schema is up to date")
		return
	}
	for _, v := range applied {
		log.Printf("Applied %s", v)
	}
}
