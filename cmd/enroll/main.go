// Command enroll registers reference images for a person so the engine can
// recognize them. Each image goes through the same detect+embed path the
// live loop uses; the embedding lands in Postgres, the source image in MinIO.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	name := flag.String("name", "", "person name to enroll")
	check := flag.Bool("check", false, "search for similar enrolled faces instead of inserting")
	flag.Parse()

	if *name == "" && !*check {
		fmt.Fprintln(os.Stderr, "usage: enroll -name <person> image.jpg [image2.jpg ...]")
		fmt.Fprintln(os.Stderr, "       enroll -check image.jpg")
		os.Exit(1)
	}
	images := flag.Args()
	if len(images) == 0 {
		fmt.Fprintln(os.Stderr, "no image files given")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, "text")

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	adapter, err := vision.NewAdapter(cfg.Vision, nil)
	if err != nil {
		slog.Error("init vision models", "error", err)
		os.Exit(1)
	}
	defer adapter.Close()

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	if *check {
		runCheck(ctx, adapter, db, images)
		return
	}

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	person, err := db.GetPersonByName(ctx, *name)
	if err != nil {
		slog.Error("lookup person", "error", err)
		os.Exit(1)
	}
	if person == nil {
		person, err = db.CreatePerson(ctx, *name, nil)
		if err != nil {
			slog.Error("create person", "error", err)
			os.Exit(1)
		}
		slog.Info("created person", "name", person.Name, "id", person.ID)
	}

	enrolled := 0
	for _, path := range images {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("read image", "path", path, "error", err)
			continue
		}

		embedding, quality, err := adapter.EmbedImage(data)
		if err != nil {
			slog.Error("extract face", "path", path, "error", err)
			continue
		}

		sourceKey := "references/" + person.ID.String() + "/" + sanitize(filepath.Base(path))
		if err := minioStore.PutObject(ctx, sourceKey, data, "image/jpeg"); err != nil {
			slog.Warn("store source image", "path", path, "error", err)
			sourceKey = ""
		}

		rf, err := db.AddReference(ctx, person.ID, embedding, quality, sourceKey)
		if err != nil {
			slog.Error("store reference", "path", path, "error", err)
			continue
		}
		enrolled++
		slog.Info("enrolled reference", "path", path, "quality", quality, "id", rf.ID)
	}

	total, _ := db.CountReferences(ctx, person.ID)
	fmt.Printf("enrolled %d/%d images for %q (%d references total)\n",
		enrolled, len(images), person.Name, total)
	if enrolled == 0 {
		os.Exit(1)
	}
}

// runCheck embeds each image and prints the closest enrolled identities.
func runCheck(ctx context.Context, adapter *vision.Adapter, db *storage.PostgresStore, images []string) {
	for _, path := range images {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("read image", "path", path, "error", err)
			continue
		}
		embedding, _, err := adapter.EmbedImage(data)
		if err != nil {
			slog.Error("extract face", "path", path, "error", err)
			continue
		}
		matches, err := db.SearchFaces(ctx, embedding, 0.3, 5)
		if err != nil {
			slog.Error("search", "path", path, "error", err)
			continue
		}
		fmt.Printf("%s:\n", path)
		if len(matches) == 0 {
			fmt.Println("  no similar enrolled faces")
			continue
		}
		for _, m := range matches {
			fmt.Printf("  %-24s %.3f\n", m.Name, m.Score)
		}
	}
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
