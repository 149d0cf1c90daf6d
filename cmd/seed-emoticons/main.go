package main

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/caarlos0/env/v9"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"github.com/shinyyama/musclecat-chat/internal/blob"
	"github.com/shinyyama/musclecat-chat/internal/config"
	"github.com/shinyyama/musclecat-chat/internal/db"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/repository"
)

type seedConfig struct {
	Dir string `env:"EMOTICON_DIR" envDefault:"../front/public/emoticons"`
}

var imageExts = map[string]bool{".png": true, ".gif": true, ".webp": true, ".jpg": true, ".jpeg": true}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var sc seedConfig
	if err := env.Parse(&sc); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if cfg.StorageBucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}

	paths, err := imageFiles(sc.Dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		log.Printf("no emoticon images found in %s", sc.Dir)
		return nil
	}

	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	repo := repository.NewEmoticonRepository(gdb)

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("storage client: %w", err)
	}
	defer client.Close()
	store := blob.NewGCSStore(client, cfg.StorageBucket)

	existing, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list emoticons: %w", err)
	}
	next := len(existing)
	inserted := 0

	for _, p := range paths {
		url, err := upload(ctx, store, p)
		if err != nil {
			return err
		}
		e := &model.Emoticon{ID: uuid.NewString(), URL: url, Order: next}
		if err := repo.Create(ctx, e); err != nil {
			return fmt.Errorf("insert %s: %w", filepath.Base(p), err)
		}
		next++
		inserted++
		log.Printf("uploaded %s -> %s", filepath.Base(p), url)
	}

	log.Printf("seed complete: inserted=%d existing=%d", inserted, len(existing))
	return nil
}

// imageFiles lists image files in dir sorted by name.
func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func upload(ctx context.Context, store blob.Store, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	ext := strings.ToLower(filepath.Ext(path))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := store.Upload(ctx, blob.NewObjectPath(blob.PrefixEmoticons, ext), contentType, f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	return url, nil
}
