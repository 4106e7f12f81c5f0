package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/authgate/internal"
	"github.com/dgellow/authgate/internal/config"
	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/storage"
)

var BuildVersion = "dev"

func deletePrefix(ctx context.Context, cfg config.Config, encoded string) error {
	prefix, err := storage.DecodeKey(encoded)
	if err != nil {
		return err
	}

	store, err := internal.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := storage.DeletePrefix(ctx, store, prefix)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d entries under %s\n", deleted, prefix)
	return nil
}

func main() {
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	validate := flag.Bool("validate", false, "validate configuration from the environment and exit")
	prefix := flag.String("delete-prefix", "", "delete every stored entry under an encoded key prefix (e.g. user_email) and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Println("Result: PASS")
		return
	}

	ctx := context.Background()

	if *prefix != "" {
		if err := deletePrefix(ctx, cfg, *prefix); err != nil {
			log.LogError("Failed to delete entries: %v", err)
			os.Exit(1)
		}
		return
	}

	log.LogInfoWithFields("main", "Starting authgate", map[string]any{
		"version": BuildVersion,
		"addr":    cfg.Addr,
	})

	gate, err := internal.NewAuthGate(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create authentication gateway: %v", err)
		os.Exit(1)
	}

	if err := gate.Run(ctx); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
