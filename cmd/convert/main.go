package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/timmy/mdconv/internal/cache"
	"github.com/timmy/mdconv/internal/config"
	"github.com/timmy/mdconv/internal/domain"
	"github.com/timmy/mdconv/internal/logger"
	"github.com/timmy/mdconv/internal/pipeline"
	"github.com/timmy/mdconv/internal/source"
	"github.com/timmy/mdconv/internal/source/directory"
	"github.com/timmy/mdconv/internal/source/manifest"
)

type stats struct {
	converted atomic.Int64
	cached    atomic.Int64
	failed    atomic.Int64
}

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "mdconv-convert",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	namespace := flag.String("namespace", "cli", "Namespace the outputs and cache entries belong to")
	workers := flag.Int("workers", 2, "Number of documents converted concurrently")
	force := flag.Bool("force", false, "Convert even when a cached result exists")
	dir := flag.String("dir", "", "Convert every supported file under this directory")
	manifestPath := flag.String("manifest", "", "Convert the files listed in this JSON Lines manifest")
	limit := flag.Int("limit", 0, "Maximum number of documents to convert (0 = all)")
	flag.Parse()

	var src source.Source
	switch {
	case *dir != "":
		src = directory.NewAdapter(*dir)
	case *manifestPath != "":
		src = manifest.NewAdapter(*manifestPath)
	case flag.NArg() > 0:
		src = source.NewFiles(flag.Args())
	default:
		fmt.Fprintln(os.Stderr, "usage: convert [flags] FILE... | -dir DIR | -manifest FILE")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if !cache.ValidNamespace(*namespace) {
		appLogger.WithField("namespace", *namespace).Fatal("Invalid namespace")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, cancel := context.WithCancel(appLogger.WithContext(context.Background()))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	layout := cache.Layout{
		UploadRoot:   cfg.Paths.Uploads,
		MarkdownRoot: cfg.Paths.Markdown,
		CacheRoot:    cfg.Paths.Cache,
	}
	if err := layout.Ensure(*namespace); err != nil {
		appLogger.WithError(err).Fatal("Failed to prepare directories")
	}

	pipe, err := pipeline.FromConfig(ctx, cfg, layout)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to build conversion pipeline")
	}
	store := cache.NewStore(layout)

	appLogger.WithField("source", src.GetSourceID()).Info("Starting conversion")

	start := time.Now()
	var st stats
	items := make(chan source.Item, *workers*2)

	var wg sync.WaitGroup
	for i := 0; i < max(*workers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				ns := *namespace
				if item.Namespace != "" {
					ns = item.Namespace
				}
				convertOne(ctx, pipe, store, ns, item, *force, &st)
			}
		}()
	}

	if err := feed(ctx, src, *limit, items); err != nil {
		appLogger.WithError(err).Error("Failed to read source")
		st.failed.Add(1)
	}
	close(items)
	wg.Wait()

	appLogger.WithFields(logger.Fields{
		"converted": st.converted.Load(),
		"cached":    st.cached.Load(),
		"failed":    st.failed.Load(),
	}).WithField(logger.FieldDurationMs, time.Since(start).Milliseconds()).Info("Conversion completed")

	if st.failed.Load() > 0 {
		os.Exit(1)
	}
}

// feed pages through src and hands items to the workers until limit
// items were sent or the context ends.
func feed(ctx context.Context, src source.Source, limit int, out chan<- source.Item) error {
	const batchSize = 50
	sent := 0
	cursor := ""
	for {
		batch, next, err := src.FetchBatch(ctx, cursor, batchSize)
		if err != nil {
			return err
		}
		for _, item := range batch {
			if limit > 0 && sent >= limit {
				return nil
			}
			select {
			case out <- item:
				sent++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

func convertOne(ctx context.Context, pipe *pipeline.Pipeline, store *cache.Store, ns string, item source.Item, force bool, st *stats) {
	log := logger.FromContext(ctx).WithField("file", item.Path)

	if item.Format == "" {
		log.Warn("Unsupported file type, skipping")
		st.failed.Add(1)
		return
	}
	if err := store.Layout().Ensure(ns); err != nil {
		log.WithError(err).Error("Failed to prepare namespace")
		st.failed.Add(1)
		return
	}

	// The pipeline deletes its source, so it works on a staged copy.
	staged, hash, err := stage(store.Layout().UploadDir(ns), item.Path)
	if err != nil {
		log.WithError(err).Error("Failed to stage file")
		st.failed.Add(1)
		return
	}

	if !force {
		if result, hit := store.Get(ctx, ns, hash); hit {
			_ = os.Remove(staged)
			log.WithField("output", result.MarkdownPath).Info("Already converted")
			fmt.Println(result.MarkdownPath)
			st.cached.Add(1)
			return
		}
	}

	doc := &domain.Document{
		Path:        staged,
		Filename:    item.Filename,
		ContentHash: hash,
		Format:      item.Format,
		Namespace:   ns,
	}
	docCtx := logger.WithField(ctx, logger.FieldContentHash, hash)
	result, err := pipe.Run(docCtx, doc, func(percent int) {
		logger.FromContext(docCtx).WithField(logger.FieldProgress, percent).Debug("Progress")
	})
	if err != nil {
		log.WithError(err).Error("Conversion failed")
		st.failed.Add(1)
		return
	}
	if err := store.Put(ctx, ns, hash, result); err != nil {
		log.WithError(err).Warn("Failed to write cache entry")
	}
	log.WithField("output", result.MarkdownPath).Info("Converted")
	fmt.Println(result.MarkdownPath)
	st.converted.Add(1)
}

// stage copies src into dir and returns the copy's path and SHA-256.
func stage(dir, src string) (string, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(dir, "*_"+filepath.Base(src))
	if err != nil {
		return "", "", err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", "", err
	}
	return out.Name(), hex.EncodeToString(h.Sum(nil)), nil
}
