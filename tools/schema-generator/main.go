// Command schema-generator writes the JSON schemas of the config file and
// the server payloads to schema/definitions.
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/livesync/config"
	"github.com/grovetools/livesync/pkg/snapshot"
)

func main() {
	outputDir := "schema/definitions"
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}

	configSchema, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating config schema: %v", err)
	}
	write(filepath.Join(outputDir, "livesync.schema.json"), configSchema)

	for _, kind := range snapshot.Kinds() {
		data, err := snapshot.GenerateSchema(kind)
		if err != nil {
			log.Fatalf("Error generating %s schema: %v", kind, err)
		}
		write(filepath.Join(outputDir, kind+".schema.json"), data)
	}
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}
	log.Printf("Generated %s", path)
}
