package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
)

var (
	app    = kingpin.New("opbridge", "Operator bridge command line client")
	server = app.Flag("server", "Bridge server URL").Default("http://localhost:3200").Envar("OPBRIDGE_SERVER_URL").String()
	apiKey = app.Flag("api-key", "API key").Envar("OPBRIDGE_API_KEY").Required().String()

	// Interaction request commands
	askCmd     = app.Command("ask", "Create an interaction request and wait for the operator's answer")
	askKind    = askCmd.Flag("kind", "Request kind (prompt, confirmation, selection)").Default("prompt").String()
	askOptions = askCmd.Flag("option", "Selection option (repeatable)").Strings()
	askTimeout = askCmd.Flag("timeout", "Request timeout").Default("0s").Duration()
	askMessage = askCmd.Arg("message", "Message shown to the operator").Required().String()

	listCmd = app.Command("list", "List pending interaction requests")

	respondCmd   = app.Command("respond", "Answer a pending request")
	respondID    = respondCmd.Arg("id", "Request ID").Required().String()
	respondValue = respondCmd.Arg("value", "Response value (yes/no for confirmations)").Required().String()

	cancelCmd = app.Command("cancel", "Cancel a pending request")
	cancelID  = cancelCmd.Arg("id", "Request ID").Required().String()

	statsCmd = app.Command("stats", "Show interaction registry stats")

	// Prompt queue commands
	promptsCmd     = app.Command("prompts", "List queued operator prompts")
	promptsPending = promptsCmd.Flag("pending", "Only unprocessed prompts").Bool()

	promptDoneCmd      = app.Command("prompt-done", "Mark a prompt as processed")
	promptDoneID       = promptDoneCmd.Arg("id", "Prompt ID").Required().String()
	promptDoneResponse = promptDoneCmd.Flag("response", "What the agent did with it").String()

	promptCleanupCmd = app.Command("prompt-cleanup", "Remove processed prompts")
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := newAPIClient(*server, *apiKey)

	var err error
	switch command {
	case askCmd.FullCommand():
		err = runAsk(ctx, client)
	case listCmd.FullCommand():
		err = runList(ctx, client)
	case respondCmd.FullCommand():
		err = runRespond(ctx, client)
	case cancelCmd.FullCommand():
		err = runCancel(ctx, client)
	case statsCmd.FullCommand():
		err = runStats(ctx, client)
	case promptsCmd.FullCommand():
		err = runPrompts(ctx, client)
	case promptDoneCmd.FullCommand():
		err = runPromptDone(ctx, client)
	case promptCleanupCmd.FullCommand():
		err = runPromptCleanup(ctx, client)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAsk(ctx context.Context, client *apiClient) error {
	req, err := client.createRequest(ctx, *askKind, *askMessage, *askOptions, (*askTimeout).Milliseconds())
	if err != nil {
		return err
	}
	yellow.Printf("Waiting for operator response to %s...\n", req.ID)

	resp, err := client.waitForResponse(ctx, req.ID)
	if err != nil {
		return err
	}
	green.Printf("Response: %v\n", resp.Value)
	return nil
}

func runList(ctx context.Context, client *apiClient) error {
	requests, err := client.listRequests(ctx)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		fmt.Println("No pending requests.")
		return nil
	}
	for _, req := range requests {
		cyan.Printf("%s", req.ID)
		fmt.Printf("  %-12s %s  (created %s)\n", req.Kind, req.Message, req.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runRespond(ctx context.Context, client *apiClient) error {
	// Confirmations take booleans on the wire.
	var value any = *respondValue
	switch *respondValue {
	case "yes", "true":
		value = true
	case "no", "false":
		value = false
	}
	accepted, err := client.respond(ctx, *respondID, value)
	if err != nil {
		return err
	}
	if !accepted {
		yellow.Println("Request is no longer pending.")
		return nil
	}
	green.Println("Response recorded.")
	return nil
}

func runCancel(ctx context.Context, client *apiClient) error {
	cancelled, err := client.cancel(ctx, *cancelID)
	if err != nil {
		return err
	}
	if !cancelled {
		yellow.Println("Request is no longer pending.")
		return nil
	}
	green.Println("Request cancelled.")
	return nil
}

func runStats(ctx context.Context, client *apiClient) error {
	stats, err := client.interactionStats(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runPrompts(ctx context.Context, client *apiClient) error {
	prompts, err := client.listPrompts(ctx, *promptsPending)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		fmt.Println("No prompts.")
		return nil
	}
	for _, p := range prompts {
		status := yellow.Sprint("pending")
		if p.Processed {
			status = green.Sprint("processed")
		}
		cyan.Printf("%s", p.ID)
		fmt.Printf("  [%s] %s", status, p.Text)
		if p.SenderLabel != "" {
			fmt.Printf("  (from %s)", p.SenderLabel)
		}
		fmt.Println()
	}
	return nil
}

func runPromptDone(ctx context.Context, client *apiClient) error {
	processed, err := client.markPromptProcessed(ctx, *promptDoneID, *promptDoneResponse)
	if err != nil {
		return err
	}
	if !processed {
		yellow.Println("Prompt not found.")
		return nil
	}
	green.Println("Prompt marked as processed.")
	return nil
}

func runPromptCleanup(ctx context.Context, client *apiClient) error {
	removed, err := client.cleanupPrompts(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d processed prompts.\n", removed)
	return nil
}
