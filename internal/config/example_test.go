package config_test

import (
	"fmt"
	"log"
	"os"

	"github.com/normanking/quadrant/internal/config"
)

// ExampleLoad demonstrates how to load configuration from the default location.
func ExampleLoad() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Threshold: %.2f\n", cfg.Router.ConfidenceThreshold)
	fmt.Printf("Model: %s\n", cfg.Inference.ModelPath)
	fmt.Printf("Remote enabled: %v\n", cfg.Remote.Enabled)
}

// ExampleLoadFromPath demonstrates loading config from a specific path.
func ExampleLoadFromPath() {
	dir, err := os.MkdirTemp("", "quadrant-config")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cfg, err := config.LoadFromPath(dir + "/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Backend: %s\n", cfg.Inference.Backend)
	fmt.Printf("Neural strategy: %s\n", cfg.Neural.Strategy)
	// Output:
	// Backend: auto
	// Neural strategy: structured
}

// ExampleConfig_Save demonstrates enabling the remote tier and saving.
func ExampleConfig_Save() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.Remote.Enabled = true
	cfg.Remote.Provider = "groq"

	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}

	fmt.Println("Configuration saved successfully")
}

// ExampleConfig_Validate demonstrates configuration validation.
func ExampleConfig_Validate() {
	cfg := config.Default()
	fmt.Println(cfg.Validate() == nil)

	cfg.Router.ConfidenceThreshold = 1.5
	fmt.Println(cfg.Validate())
	// Output:
	// true
	// invalid config: router.confidence_threshold: failed lte=1 (got 1.5)
}
