package app

// Command selects what the binary does.
type Command string

const (
	// CommandServe runs the HTTP server.
	CommandServe Command = "serve"
	// CommandMigrate creates the users table and exits.
	CommandMigrate Command = "migrate"
	// CommandSeed inserts the demo accounts and exits.
	CommandSeed Command = "seed"
	// CommandHealthcheck probes a running server, for container health checks.
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand returns the subcommand in args. Empty or unknown input serves.
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "seed":
		return CommandSeed
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
