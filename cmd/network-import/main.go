// Command network-import loads a node-link JSON road network export into
// Neo4j as (:Intersection)-[:ROAD]->(:Intersection).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-routing/engine/network"
)

// storer persists a network.
type storer interface {
	Store(ctx context.Context, n *network.Network, batchSize int) error
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()
	var (
		file      = flag.String("file", "", "node-link JSON file (required)")
		neo4jURL  = flag.String("neo4j", envOr("NEO4J_URL", "neo4j://localhost:7687"), "Neo4j bolt URL")
		neo4jUser = flag.String("neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j username")
		neo4jPass = flag.String("neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password")
		batch     = flag.Int("batch", 500, "roads per write transaction")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)
	if *file == "" {
		log.Error("-file is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(context.Background())
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}

	if err := importFile(ctx, *file, network.NewNeo4jProvider(driver), *batch, log); err != nil {
		log.Error("import failed", "error", err)
		os.Exit(1)
	}
}

// importFile decodes path and writes it through s.
func importFile(ctx context.Context, path string, s storer, batch int, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	net, skipped, err := network.Decode(f)
	if err != nil {
		return err
	}
	if net.NumEdges() == 0 {
		return fmt.Errorf("%s: no usable roads (%d skipped)", path, skipped)
	}
	if skipped > 0 {
		log.Warn("skipped malformed roads", "count", skipped)
	}

	start := time.Now()
	if err := s.Store(ctx, net, batch); err != nil {
		return err
	}
	log.Info("network imported",
		"nodes", net.NumNodes(),
		"roads", net.NumEdges(),
		"duration", time.Since(start),
	)
	return nil
}
