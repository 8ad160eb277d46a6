package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/catherinevee/reghook/internal/auth"
	"github.com/catherinevee/reghook/internal/registry"
)

func handleList(client *apiClient, args []string) {
	asJSON := false
	for _, arg := range args {
		if arg == "--json" {
			asJSON = true
		}
	}

	webhooks, err := client.listWebhooks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to list webhooks: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		printJSON(webhooks)
		return
	}

	if len(webhooks) == 0 {
		fmt.Println("No webhooks registered")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "URL", "Events", "Status", "Created"})
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator(" ")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, wh := range webhooks {
		table.Append([]string{
			wh.ID,
			wh.Name,
			wh.URL,
			fmt.Sprintf("%d", len(wh.Events)),
			statusString(wh.Status),
			time.UnixMilli(wh.CreatedAt).Format("2006-01-02 15:04"),
		})
	}

	table.Render()
}

func handleGet(client *apiClient, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: webhook ID required")
		fmt.Fprintln(os.Stderr, "Usage: reghookctl get <id>")
		os.Exit(1)
	}

	wh, err := client.getWebhook(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to get webhook: %v\n", err)
		os.Exit(1)
	}

	printWebhook(wh)
}

func handleCreate(client *apiClient, args []string) {
	req := map[string]interface{}{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name":
			if i+1 < len(args) {
				req["name"] = args[i+1]
				i++
			}
		case "--url":
			if i+1 < len(args) {
				req["url"] = args[i+1]
				i++
			}
		case "--events":
			if i+1 < len(args) {
				req["events"] = splitEvents(args[i+1])
				i++
			}
		case "--description":
			if i+1 < len(args) {
				req["description"] = args[i+1]
				i++
			}
		case "--secret":
			if i+1 < len(args) {
				req["secret"] = args[i+1]
				i++
			}
		case "--status":
			if i+1 < len(args) {
				req["status"] = args[i+1]
				i++
			}
		}
	}

	if req["name"] == nil || req["url"] == nil || req["events"] == nil {
		fmt.Fprintln(os.Stderr, "Error: --name, --url and --events are required")
		fmt.Fprintln(os.Stderr, "Usage: reghookctl create --name <name> --url <url> --events <e1,e2> [--secret <secret>] [--description <text>]")
		os.Exit(1)
	}

	wh, err := client.createWebhook(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create webhook: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Webhook created: %s\n", color.GreenString(wh.ID))
	printWebhook(wh)
}

func handleUpdate(client *apiClient, args []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "--") {
		fmt.Fprintln(os.Stderr, "Error: webhook ID required")
		fmt.Fprintln(os.Stderr, "Usage: reghookctl update <id> [--name <name>] [--url <url>] [--events <e1,e2>] [--status <status>] [--description <text>] [--secret <secret>]")
		os.Exit(1)
	}

	id := args[0]
	req := map[string]interface{}{}
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--name":
			if i+1 < len(args) {
				req["name"] = args[i+1]
				i++
			}
		case "--url":
			if i+1 < len(args) {
				req["url"] = args[i+1]
				i++
			}
		case "--events":
			if i+1 < len(args) {
				req["events"] = splitEvents(args[i+1])
				i++
			}
		case "--description":
			if i+1 < len(args) {
				req["description"] = args[i+1]
				i++
			}
		case "--secret":
			if i+1 < len(args) {
				req["secret"] = args[i+1]
				i++
			}
		case "--status":
			if i+1 < len(args) {
				req["status"] = args[i+1]
				i++
			}
		}
	}

	if len(req) == 0 {
		fmt.Fprintln(os.Stderr, "Error: nothing to update")
		os.Exit(1)
	}

	wh, err := client.updateWebhook(id, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to update webhook: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Webhook updated: %s\n", color.GreenString(wh.ID))
	printWebhook(wh)
}

func handleDelete(client *apiClient, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: webhook ID required")
		fmt.Fprintln(os.Stderr, "Usage: reghookctl delete <id>")
		os.Exit(1)
	}

	if err := client.deleteWebhook(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to delete webhook: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Webhook deleted: %s\n", args[0])
}

func handleTest(client *apiClient, args []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "--") {
		fmt.Fprintln(os.Stderr, "Error: webhook ID required")
		fmt.Fprintln(os.Stderr, "Usage: reghookctl test <id> --event <event-type> [--data <json>]")
		os.Exit(1)
	}

	id := args[0]
	eventType := ""
	var data map[string]interface{}
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--event":
			if i+1 < len(args) {
				eventType = args[i+1]
				i++
			}
		case "--data":
			if i+1 < len(args) {
				if err := json.Unmarshal([]byte(args[i+1]), &data); err != nil {
					fmt.Fprintf(os.Stderr, "Error: --data must be a JSON object: %v\n", err)
					os.Exit(1)
				}
				i++
			}
		}
	}

	if eventType == "" {
		fmt.Fprintln(os.Stderr, "Error: --event is required")
		os.Exit(1)
	}

	result, err := client.testWebhook(id, eventType, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Test delivery failed: %v\n", err)
		os.Exit(1)
	}

	if result.Success {
		fmt.Printf("✅ Delivery succeeded (HTTP %d in %dms)\n", result.StatusCode, result.ResponseMS)
	} else {
		fmt.Printf("❌ Delivery failed: %s\n", color.RedString(result.ErrorKind))
		if result.ErrorMessage != "" {
			fmt.Printf("   %s\n", result.ErrorMessage)
		}
		if result.StatusCode != 0 {
			fmt.Printf("   HTTP status: %d\n", result.StatusCode)
		}
	}
	fmt.Printf("   Delivery ID: %s\n", result.DeliveryID)
	if result.ResponseBody != "" {
		fmt.Printf("   Response: %s\n", result.ResponseBody)
	}
}

func handleEvents(client *apiClient) {
	events, err := client.listEventTypes()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to list event types: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Supported event types:")
	for _, event := range events {
		fmt.Printf("  %s\n", color.CyanString(event))
	}
}

func handleStats(client *apiClient) {
	stats, err := client.stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to fetch statistics: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Dispatcher:")
	fmt.Printf("  Queue size:       %d\n", stats.QueueSize)
	fmt.Printf("  Stream clients:   %d\n", stats.StreamClients)
	fmt.Printf("  Server uptime:    %s\n", formatSeconds(stats.UptimeSeconds))
	fmt.Println()
	fmt.Println("Cache:")
	fmt.Printf("  Webhooks:         %d\n", stats.Cache.WebhookCount)
	fmt.Printf("  Refresh interval: %s\n", formatSeconds(stats.Cache.RefreshInterval))
	fmt.Printf("  Cache age:        %s\n", formatSeconds(stats.Cache.CacheAgeSeconds))
	fmt.Printf("  Running:          %v\n", stats.Cache.IsRunning)

	if len(stats.FailureCounts) > 0 {
		fmt.Println()
		fmt.Println("Consecutive failures:")

		ids := make([]string, 0, len(stats.FailureCounts))
		for id := range stats.FailureCounts {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Webhook ID", "Failures"})
		table.SetBorder(false)
		table.SetHeaderLine(false)
		table.SetColumnSeparator(" ")
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, id := range ids {
			table.Append([]string{id, fmt.Sprintf("%d", stats.FailureCounts[id])})
		}
		table.Render()
	}
}

func handleRefresh(client *apiClient) {
	info, err := client.refreshCache()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to refresh cache: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Cache refreshed: %d webhooks loaded\n", info.WebhookCount)
}

// handleToken mints a JWT locally so operators can call an auth-enabled
// server without a separate identity provider.
func handleToken(args []string) {
	subject := "admin"
	ttl := time.Hour
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--subject":
			if i+1 < len(args) {
				subject = args[i+1]
				i++
			}
		case "--ttl":
			if i+1 < len(args) {
				parsed, err := time.ParseDuration(args[i+1])
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: invalid --ttl: %v\n", err)
					os.Exit(1)
				}
				ttl = parsed
				i++
			}
		}
	}

	secret := os.Getenv("REGHOOK_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "Error: REGHOOK_JWT_SECRET must be set to mint tokens")
		os.Exit(1)
	}

	token, err := auth.NewService(secret, ttl).GenerateToken(subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

func printWebhook(wh registry.Webhook) {
	fmt.Printf("ID:          %s\n", wh.ID)
	fmt.Printf("Name:        %s\n", wh.Name)
	fmt.Printf("URL:         %s\n", wh.URL)
	fmt.Printf("Status:      %s\n", statusString(wh.Status))
	if wh.Description != "" {
		fmt.Printf("Description: %s\n", wh.Description)
	}
	fmt.Printf("Events:\n")
	for _, event := range wh.Events {
		fmt.Printf("  - %s\n", event)
	}
	fmt.Printf("Created:     %s\n", time.UnixMilli(wh.CreatedAt).Format(time.RFC3339))
	fmt.Printf("Updated:     %s\n", time.UnixMilli(wh.UpdatedAt).Format(time.RFC3339))
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func statusString(status registry.WebhookStatus) string {
	switch status {
	case registry.WebhookStatusActive:
		return color.GreenString(string(status))
	case registry.WebhookStatusDisabled:
		return color.RedString(string(status))
	case registry.WebhookStatusInactive:
		return color.YellowString(string(status))
	}
	return string(status)
}

func splitEvents(value string) []string {
	parts := strings.Split(value, ",")
	events := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			events = append(events, trimmed)
		}
	}
	return events
}

func formatSeconds(seconds float64) string {
	return (time.Duration(seconds) * time.Second).Round(time.Second).String()
}
