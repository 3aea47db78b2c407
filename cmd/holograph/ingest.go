package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"holograph/internal/ingest"
	"holograph/internal/types"
)

var (
	ingestRoleLevel int
	ingestOrigin    string
)

// ingestCmd loads a local text file into the store, chunk by chunk.
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a local document into the knowledge store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}

		app, err := buildApplication()
		if err != nil {
			return err
		}
		defer app.close()

		fileID := filepath.Base(path)
		chunks := splitChunks(string(data))
		inputs := make([]ingest.ChunkInput, 0, len(chunks))
		for i, text := range chunks {
			inputs = append(inputs, ingest.ChunkInput{
				Text:          text,
				FileID:        fileID,
				ChunkIdx:      i,
				RoleViewLevel: ingestRoleLevel,
				Provenance: types.Provenance{
					Origin:   ingestOrigin,
					UploadID: fileID,
				},
			})
		}

		pipeline := app.server.Pipeline()
		outcomes, err := pipeline.IngestBatch(cmd.Context(), inputs)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"file_id": fileID,
			"chunks":  outcomes,
		})
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestRoleLevel, "role-level", 0,
		"visibility level for the ingested memories (0, 1, or 2)")
	ingestCmd.Flags().StringVar(&ingestOrigin, "origin", "local",
		"provenance origin tag")
}

// splitChunks breaks a document on blank lines, dropping empty paragraphs.
func splitChunks(text string) []string {
	paragraphs := strings.Split(text, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
