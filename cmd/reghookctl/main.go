package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

const defaultServerURL = "http://localhost:8080"

func main() {
	serverURL := os.Getenv("REGHOOK_SERVER")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	token := os.Getenv("REGHOOK_TOKEN")

	// Global flags come before the command.
	args := os.Args[1:]
globals:
	for len(args) > 0 {
		switch args[0] {
		case "--server":
			if len(args) < 2 {
				fmt.Fprintln(os.Stderr, "Error: --server requires a URL")
				os.Exit(1)
			}
			serverURL = args[1]
			args = args[2:]
		case "--token":
			if len(args) < 2 {
				fmt.Fprintln(os.Stderr, "Error: --token requires a value")
				os.Exit(1)
			}
			token = args[1]
			args = args[2:]
		default:
			break globals
		}
	}

	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" || args[0] == "help" {
		printUsage()
		return
	}

	client := newAPIClient(serverURL, token)

	switch args[0] {
	case "list":
		handleList(client, args[1:])
	case "get":
		handleGet(client, args[1:])
	case "create":
		handleCreate(client, args[1:])
	case "update":
		handleUpdate(client, args[1:])
	case "delete":
		handleDelete(client, args[1:])
	case "test":
		handleTest(client, args[1:])
	case "events":
		handleEvents(client)
	case "stats":
		handleStats(client)
	case "refresh":
		handleRefresh(client)
	case "token":
		handleToken(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: reghookctl [--server URL] [--token TOKEN] <command> [options]")
	fmt.Println()
	fmt.Println("Administer webhooks on a reghook server")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Printf("  %s               List registered webhooks\n", color.CyanString("list"))
	fmt.Printf("  %s <id>           Show a webhook\n", color.CyanString("get"))
	fmt.Printf("  %s             Register a new webhook\n", color.CyanString("create"))
	fmt.Printf("  %s <id>        Modify a webhook\n", color.CyanString("update"))
	fmt.Printf("  %s <id>        Remove a webhook\n", color.CyanString("delete"))
	fmt.Printf("  %s <id>          Send a test delivery\n", color.CyanString("test"))
	fmt.Printf("  %s             List supported event types\n", color.CyanString("events"))
	fmt.Printf("  %s              Show dispatcher statistics\n", color.CyanString("stats"))
	fmt.Printf("  %s            Force a webhook cache refresh\n", color.CyanString("refresh"))
	fmt.Printf("  %s              Mint an admin token from REGHOOK_JWT_SECRET\n", color.CyanString("token"))
	fmt.Println()
	fmt.Println("Global options:")
	fmt.Println("  --server <url>       Server base URL (default: " + defaultServerURL + ", env: REGHOOK_SERVER)")
	fmt.Println("  --token <token>      Bearer token for authenticated servers (env: REGHOOK_TOKEN)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  reghookctl create --name ci-notifier --url https://hooks.example.com/ci \\")
	fmt.Println("      --events MODEL_VERSION_CREATED,MODEL_ALIAS_SET --secret s3cret")
	fmt.Println("  reghookctl test 2f8a9c1e --event MODEL_VERSION_CREATED")
	fmt.Println("  reghookctl update 2f8a9c1e --status ACTIVE")
}
