package runtime

import "context"

// SoarCommands are the agent-shell commands that take effect only inside a
// running kernel. During analysis they evaluate to the empty string.
var SoarCommands = []string{
	"alias", "chunk", "chunk-name-format", "cli", "debug", "decide", "echo",
	"echo-commands", "epmem", "excise", "explain", "gp", "help", "indifferent-selection",
	"init-soar", "learn", "load", "max-chunks", "max-elaborations", "multi-attributes",
	"numeric-indifferent-mode", "o-support-mode", "output", "pbreak", "predict",
	"preferences", "print", "production", "rl", "run", "save-backtraces", "select",
	"smem", "soar", "srand", "stats", "svs", "timers", "trace", "version",
	"visualize", "waitsnc", "watch", "wm",
}

func noop(context.Context, *Interp, []string) (string, error) { return "", nil }

func registerSoarCommands(in *Interp) {
	for _, name := range SoarCommands {
		in.commands[name] = noop
	}
	in.commands["sp"] = cmdSp
}

// cmdSp accepts a production body. The analysis engine replaces it with a
// recording version.
func cmdSp(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) != 2 {
		return "", wrongArgs("sp body")
	}
	return "", nil
}
