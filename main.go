// Command ragserver runs the retrieval-augmented generation HTTP
// server: document ingestion, similarity search backed querying and
// conversation history over a PostgreSQL/pgvector store.
package main

import (
	"fmt"
	"os"

	"github.com/raganything/ragserver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
