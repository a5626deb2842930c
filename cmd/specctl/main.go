// Package main implements the specctl CLI for manual operations
// against the specd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the specd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "specctl",
	Short: "CLI for specd server operations",
	Long: `specctl is a command-line interface for interacting with the specd server.
It provides commands for running extractions, indexing codebases, and
checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8750", "specd server URL")
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(healthCmd)
}

var (
	extractTypes   string
	extractMaxDocs int
)

// extractCmd runs an extraction over an indexed codebase
var extractCmd = &cobra.Command{
	Use:   "extract <codebase>",
	Short: "Extract structured facts from an indexed codebase",
	Long: `Run the extraction pipeline against an indexed codebase and print
the aggregated result as JSON.

Examples:
  # Extract everything
  specctl extract shop-backend

  # Extract selected types
  specctl extract shop-backend --types server,sql

  # Use a different server
  specctl extract --server http://localhost:9000 shop-backend`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check specd server health",
	RunE:  runHealth,
}

func init() {
	extractCmd.Flags().StringVar(&extractTypes, "types", "server,sql,api,dependencies", "comma-separated extraction types")
	extractCmd.Flags().IntVar(&extractMaxDocs, "max-docs", 0, "maximum documents per retrieval query (0 = server default)")
}

// extractRequest matches internal/pipeline Request.
type extractRequest struct {
	Codebase     string   `json:"codebase"`
	Types        []string `json:"types"`
	MaxDocuments int      `json:"max_documents,omitempty"`
}

// healthResponse matches internal/server HealthResponse.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// runExtract handles the extract command
func runExtract(cmd *cobra.Command, args []string) error {
	types := strings.Split(extractTypes, ",")
	for i := range types {
		types[i] = strings.TrimSpace(types[i])
	}

	reqJSON, err := json.Marshal(extractRequest{
		Codebase:     args[0],
		Types:        types,
		MaxDocuments: extractMaxDocs,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/extract", serverURL)
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	// Pretty-print the JSON result
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("server unreachable at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("%s: %s\n", health.Service, health.Status)
	return nil
}
