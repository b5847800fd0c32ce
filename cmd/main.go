package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"multimodal-rag/internal/assembler"
	"multimodal-rag/internal/config"
	"multimodal-rag/internal/embedding"
	"multimodal-rag/internal/helper"
	"multimodal-rag/internal/imagecache"
	"multimodal-rag/internal/ingest"
	"multimodal-rag/internal/store"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	ingestDir := flag.String("ingest", "", "Directory of documents to index")
	query := flag.String("query", "", "Question to answer against the index")
	rebuildCache := flag.Bool("rebuild-cache", false, "Rebuild the image cache registry from stored metadata")
	listFiles := flag.Bool("list", false, "List indexed files")
	deleteFile := flag.String("delete-file", "", "Remove an indexed file and its cached images")
	export := flag.Bool("export", false, "Export an encrypted snapshot of the chromem collection")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx := context.Background()

	switch {
	case *ingestDir != "":
		runIngest(ctx, cfg, *ingestDir)
	case *query != "":
		runQuery(ctx, cfg, *query)
	case *rebuildCache:
		runRebuildCache(ctx, cfg)
	case *listFiles:
		runListFiles(ctx, cfg)
	case *deleteFile != "":
		runDeleteFile(ctx, cfg, *deleteFile)
	case *export:
		runExport(ctx, cfg)
	default:
		log.Fatal().Msg("Please provide one of -ingest, -query, -rebuild-cache, -list, -delete-file or -export")
	}
}

func openStore(ctx context.Context, cfg *config.Config) store.VectorStore {
	switch cfg.Store.Backend {
	case "postgres":
		vs, err := store.NewPostgresStore(ctx, &cfg.Store.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to postgres store")
		}
		return vs
	default:
		if err := helper.CreateFolder(cfg.Store.Chromem.Path); err != nil {
			log.Fatal().Err(err).Msg("Error creating store folder")
		}
		vs, err := store.NewChromemStore(&cfg.Store.Chromem)
		if err != nil {
			log.Fatal().Err(err).Msg("Error opening chromem store")
		}
		return vs
	}
}

func openCache(cfg *config.Config) *imagecache.Cache {
	cache, err := imagecache.New(cfg.Cache.Dir, cfg.Cache.MaxMemoryMB)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening image cache")
	}
	return cache
}

func newEmbedder(cfg *config.Config) embeddings.Embedder {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	return embedder
}

func runIngest(ctx context.Context, cfg *config.Config, dir string) {
	cache := openCache(cfg)
	vs := openStore(ctx, cfg)
	defer vs.Close()

	pipeline, err := ingest.New(cache, vs, newEmbedder(cfg), &cfg.Ingest)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building ingestion pipeline")
	}

	report, err := pipeline.Ingest(ctx, dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	log.Info().Msg("Ingestion report: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	helper.PrettyPrint(report)
	fmt.Printf("Indexed %d chunks from %d files (%d failed)\n",
		report.TotalChunks, report.Succeeded(), len(report.Failed()))
}

func runQuery(ctx context.Context, cfg *config.Config, query string) {
	cache := openCache(cfg)
	vs := openStore(ctx, cfg)
	defer vs.Close()

	// re-register images persisted by earlier runs so markers resolve
	rebuildRegistry(ctx, cache, vs)

	a := assembler.New(cache, vs, newEmbedder(cfg), &cfg.LLM, cfg.Query)
	result := a.Answer(ctx, query)

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, chunk := range result.SourceChunks {
		fmt.Printf("%s page %d (score %.3f)\n", chunk.Metadata.FileName, chunk.Metadata.Page, chunk.Score)
	}
	fmt.Println()

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, seg := range result.Segments {
		switch seg.Kind {
		case assembler.SegmentImage:
			fmt.Printf("[image %d: %s]", seg.Number, cache.Path(seg.ImageID))
		case assembler.SegmentUnresolved:
			fmt.Printf("[image %d: unresolved reference]", seg.Number)
		default:
			fmt.Print(seg.Text)
		}
	}
	fmt.Println()

	if !result.Success {
		os.Exit(1)
	}
}

func runRebuildCache(ctx context.Context, cfg *config.Config) {
	cache := openCache(cfg)
	vs := openStore(ctx, cfg)
	defer vs.Close()

	restored := rebuildRegistry(ctx, cache, vs)
	fmt.Printf("Re-registered %d cached images (%d bytes)\n", restored, cache.CurrentMemory())
}

func rebuildRegistry(ctx context.Context, cache *imagecache.Cache, vs store.VectorStore) int {
	metas, err := vs.AllMetadata(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading stored metadata")
	}
	return cache.Rebuild(metas)
}

func runListFiles(ctx context.Context, cfg *config.Config) {
	vs := openStore(ctx, cfg)
	defer vs.Close()

	files, err := vs.ListFiles(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error listing files")
	}
	if len(files) == 0 {
		fmt.Println("No files indexed")
		return
	}
	for name, info := range files {
		fmt.Printf("%s: %d chunks, %d pages, %d images\n", name, info.ChunkCount, info.PageCount, info.ImageCount)
	}
}

func runDeleteFile(ctx context.Context, cfg *config.Config, fileName string) {
	cache := openCache(cfg)
	vs := openStore(ctx, cfg)
	defer vs.Close()

	rebuildRegistry(ctx, cache, vs)

	imageIDs, err := vs.DeleteFile(ctx, fileName)
	if err != nil {
		log.Fatal().Err(err).Msg("Error deleting file")
	}
	for _, id := range imageIDs {
		cache.Remove(id)
	}
	fmt.Printf("Deleted %s and %d cached images\n", fileName, len(imageIDs))
}

func runExport(ctx context.Context, cfg *config.Config) {
	vs := openStore(ctx, cfg)
	defer vs.Close()

	cs, ok := vs.(*store.ChromemStore)
	if !ok {
		log.Fatal().Msg("Export is only supported for the chromem backend")
	}
	if err := cs.Export(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error exporting collection")
	}
	fmt.Println("Collection exported")
}
