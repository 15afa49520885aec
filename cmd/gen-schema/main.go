// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

// Command gen-schema generates the roles file JSON Schema.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/galacticfy/galacticfy/internal/access/seed"
)

func main() {
	outPath := pflag.StringP("out", "o", filepath.Join("schemas", "roles.schema.json"), "output file")
	pflag.Parse()

	schema, err := seed.GenerateSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*outPath, append(schema, '\n'), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s\n", *outPath)
}
