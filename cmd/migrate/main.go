package main

import (
	"flag"
	"log"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/config"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/repository"
)

var (
	flags  = flag.NewFlagSet("migrate", flag.ExitOnError)
	driver = flags.String("driver", "", "snapshot driver (sqlite, postgres); defaults to ECO_SNAPSHOT_DRIVER")
	dsn    = flags.String("dsn", "", "snapshot DSN; defaults to ECO_SNAPSHOT_DSN")
)

func main() {
	flag.Parse()
	flags.Parse(flag.Args())
	args := flags.Args()

	if len(args) < 1 {
		log.Fatal("Usage: migrate [-driver sqlite|postgres] [-dsn DSN] COMMAND\n\nCommands:\n  up\n  down\n  status\n  version")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *driver == "" {
		*driver = cfg.Snapshot.Driver
	}
	if *dsn == "" {
		*dsn = cfg.Snapshot.DSN
	}
	if *driver == repository.DriverNone {
		log.Fatal("Snapshot driver is none; nothing to migrate")
	}

	db, err := repository.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	command := args[0]
	if err := repository.RunMigration(db, *driver, command); err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
}
