package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngoclaw/ngoclaw/gateway/internal/interfaces/cli"
)

const ctlVersion = "0.1.0"

func main() {
	var baseURL string
	var apiKey string

	rootCmd := &cobra.Command{
		Use: "enginectl",
		Short: "operator CLI for the AI Studio gateway",
	}
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:2048", "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("AISTUDIO_GATEWAY_API_KEY"), "API key, if auth is enabled")

	rootCmd.AddCommand(&cobra.Command{
		Use: "version",
		Short: "show enginectl's version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("enginectl v%s\n", ctlVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use: "status",
		Short: "show gateway health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var h map[string]interface{}
			if err := getJSON(baseURL, "/health", apiKey, &h); err != nil {
				return err
			}
			r := cli.NewRenderer(terminalWidth())
			fmt.Println(r.RenderHealth(h))
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use: "queue",
		Short: "show request queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q map[string]interface{}
			if err := getJSON(baseURL, "/v1/queue", apiKey, &q); err != nil {
				return err
			}
			r := cli.NewRenderer(terminalWidth())
			fmt.Println(r.RenderQueue(q))
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use: "cancel [req_id]",
		Short: "cancel an in-flight request",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(baseURL, "/v1/cancel/"+args[0], apiKey)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use: "info",
		Short: "render the effective non-secret config as markdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			var info map[string]interface{}
			if err := getJSON(baseURL, "/api/info", apiKey, &info); err != nil {
				return err
			}
			md := renderInfoMarkdown(info)
			r := cli.NewRenderer(terminalWidth())
			fmt.Println(r.RenderMarkdown(md))
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getJSON(baseURL, path, apiKey string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", path, string(body))
	}
	return json.Unmarshal(body, out)
}

func postJSON(baseURL, path, apiKey string) error {
	req, err := http.NewRequest(http.MethodPost, baseURL+path, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}

func renderInfoMarkdown(info map[string]interface{}) string {
	out := "# gateway config\n\n"
	for k, v := range info {
		out += fmt.Sprintf("- **%s**: %v\n", k, v)
	}
	return out
}

func terminalWidth() int {
	return 100
}
