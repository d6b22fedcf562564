// Command gateway-cli is a thin client for the codex gateway: it POSTs
// a prompt to /exec and prints the resulting thread events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	clihelpers "github.com/willy3087/codex-gateway/pkg/cli"
)

func main() {
	var (
		gatewayURL string
		apiKey     string
		sessionID  string
		model      string
	)

	root := &cobra.Command{
		Use:   "gateway-cli [PROMPT]",
		Short: "Send a prompt to a running codex gateway and print its events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := ""
			if len(args) == 1 {
				prompt = args[0]
			} else {
				prompt = clihelpers.DefaultPrompter().Ask("Prompt", "")
				if prompt == "" {
					return fmt.Errorf("a prompt is required")
				}
			}
			return run(gatewayURL, apiKey, sessionID, model, prompt)
		},
	}

	root.Flags().StringVar(&gatewayURL, "gateway", envOr("GATEWAY_URL", "http://localhost:8080"), "gateway base URL")
	root.Flags().StringVar(&apiKey, "api-key", os.Getenv("GATEWAY_API_KEY"), "API key")
	root.Flags().StringVar(&sessionID, "session", "", "session ID to bind this prompt to")
	root.Flags().StringVar(&model, "model", "", "override the default model")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type execRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

func run(gatewayURL, apiKey, sessionID, model, prompt string) error {
	body, err := json.Marshal(execRequest{Prompt: prompt, SessionID: sessionID, Model: model})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, gatewayURL+"/exec", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request gateway: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		fmt.Println(string(data))
		return nil
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
