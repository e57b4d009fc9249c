// Command seed writes a formula bundle into the SQLite store and exits.
// Seeding is idempotent: formulas whose id already exists are skipped, and
// a newer current version supersedes the stored one.
//
//	seed -db=./data/payroll.db                 # embedded Kenya preset
//	seed -db=./data/payroll.db -seed=ke.yaml   # bundle file
//	seed -preset=kenya_2025 -dump              # print a preset as YAML
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/internal/config"
	"github.com/warp/payroll-engine/store/sqlite"
)

func main() {
	var (
		preset string
		dump   bool
	)
	cfg, err := config.Load("seed", os.Args[1:], func(fs *flag.FlagSet) {
		fs.StringVar(&preset, "preset", factory.PresetKenya2025, "Embedded preset used when no -seed file is given")
		fs.BoolVar(&dump, "dump", false, "Print the bundle as YAML instead of seeding")
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := run(cfg, preset, dump, logger); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, preset string, dump bool, logger *slog.Logger) error {
	var (
		bundle *factory.Bundle
		err    error
	)
	if cfg.SeedFile != "" {
		bundle, err = factory.LoadBundleFile(cfg.SeedFile)
	} else {
		bundle, err = factory.Preset(preset)
	}
	if err != nil {
		return err
	}

	if dump {
		out, err := bundle.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := factory.NewSeeder(store, logger).Seed(context.Background(), bundle)
	if err != nil {
		return err
	}

	fmt.Printf("seeded %s into %s\n", bundle.Name, cfg.DBPath)
	fmt.Printf("  inserted:   %v\n", report.Inserted)
	fmt.Printf("  superseded: %v\n", report.Superseded)
	fmt.Printf("  skipped:    %v\n", report.Skipped)
	fmt.Printf("  reliefs: %d, components: %d\n", report.Reliefs, report.Components)
	return nil
}
