package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/chat-responses-gateway/internal/config"
	"github.com/tjfontaine/chat-responses-gateway/internal/recording"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	dbPath := flag.String("db", "", "recording database (defaults to recording.path from config)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: recordings [-config path] [-db path] <recording-id> [artifact]")
		fmt.Fprintf(os.Stderr, "Artifacts: %s, %s, %s, %s\n",
			recording.DownstreamRequest, recording.UpstreamRequest,
			recording.UpstreamResponse, recording.DownstreamResponse)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	path := *dbPath
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		path = cfg.Recording.Path
	}

	store, err := recording.Open(path)
	if err != nil {
		log.Fatalf("Failed to open recording store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := show(ctx, os.Stdout, store, flag.Arg(0), flag.Arg(1)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// show prints a recording summary, or the raw bytes of one artifact when
// artifact is set.
func show(ctx context.Context, w io.Writer, store *recording.Store, id, artifact string) error {
	switch artifact {
	case "":
		rec, res, err := store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("recording %s: %w", id, err)
		}
		fmt.Fprintf(w, "id:            %s\n", rec.ID)
		fmt.Fprintf(w, "created:       %s\n", rec.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "request:       %s %s\n", rec.Method, rec.Path)
		fmt.Fprintf(w, "model:         %s\n", rec.Model)
		fmt.Fprintf(w, "status:        %d\n", res.StatusCode)
		fmt.Fprintf(w, "finish_reason: %s\n", res.FinishReason)
		fmt.Fprintf(w, "chunks:        %d\n", res.Chunks)
		if res.Error != "" {
			fmt.Fprintf(w, "error:         %s\n", res.Error)
		}
		return nil
	case recording.DownstreamRequest, recording.UpstreamRequest:
		body, err := store.LoadPayload(ctx, id, artifact)
		if err != nil {
			return fmt.Errorf("%s of %s: %w", artifact, id, err)
		}
		_, err = w.Write(body)
		return err
	case recording.UpstreamResponse, recording.DownstreamResponse:
		body, err := store.LoadStream(ctx, id, artifact)
		if err != nil {
			return fmt.Errorf("%s of %s: %w", artifact, id, err)
		}
		_, err = w.Write(body)
		return err
	default:
		return fmt.Errorf("unknown artifact %q", artifact)
	}
}
