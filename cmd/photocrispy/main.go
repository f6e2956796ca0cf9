package main

import (
	"log"
	"os"
	"runtime"
	rdebug "runtime/debug"

	"photocrispy/internal/app"
	"photocrispy/internal/config"
)

const defaultMemoryLimit = 4 << 30

func main() {
	configureRuntime()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		log.Fatalf("Application initialization failed: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Application execution failed: %v", err)
	}
}

// Decoded RAW buffers are large and short lived.
func configureRuntime() {
	rdebug.SetGCPercent(200)
	if os.Getenv("GOMEMLIMIT") == "" {
		rdebug.SetMemoryLimit(defaultMemoryLimit)
	}
	log.Printf("Runtime configured: GOMAXPROCS=%d, GC target=200%%", runtime.GOMAXPROCS(0))
}
