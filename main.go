//	@title			soauth API
//	@version		1.0
//	@description	Identity provider issuing per-app signed access tokens and rotating refresh tokens

//	@contact.name	Simons Observatory
//	@contact.url	https://github.com/simonsobs/soauth

//	@BasePath	/

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and an access token of the management app.

//go:generate go run github.com/swaggo/swag/cmd/swag init -g main.go -o api --outputTypes go

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/simonsobs/soauth/internal/bootstrap"
	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/version"
)

func main() {
	// Define flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Usage = printUsage
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		version.Fprint(os.Stdout)
		os.Exit(0)
	}

	// Check if command is provided
	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Handle subcommands
	switch args[0] {
	case "server":
		if err := bootstrap.Run(config.Load()); err != nil {
			log.Fatalf("Failed to start soauth: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Usage: %s [OPTIONS] COMMAND\n\n", os.Args[0])
	fmt.Println("Identity provider issuing signed access and refresh tokens for registered apps")
	fmt.Println("\nCommands:")
	fmt.Println("  server    Start the soauth server")
	fmt.Println("\nOptions:")
	fmt.Println("  -v, --version    Show version information")
	fmt.Println("  -h, --help       Show this help message")
}
