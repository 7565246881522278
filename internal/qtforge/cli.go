package qtforge

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: qtforge <command> [arguments]")
	colSuccess.Println("Run 'qtforge <command> -h' for command options")
	fmt.Println()
	colInfo.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"create", "[-v ver] [-w base] [-r remote] [-p profile] [-b dir] [-c dir]", "Download, patch and build the recipe"},
		{"merge", "[-original file] [-custom file] [-w base]", "Merge custom versions into conandata.yml"},
		{"show", "[-original file] [-custom file] [version...]", "Show resolved patch lists of custom versions"},
		{"checksum", "[-c dir] [-force]", "Record BLAKE3 sums of the custom patches"},
		{"pack", "[-format zst|xz|gz] [-o file]", "Pack the build directory into an archive"},
		{"upload", "[-list] [archive...]", "Upload recipe archives to R2"},
		{"version, --version", "", "Version information"},
		{"help", "", "Show this help"},
	}

	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		usageString := c.Cmd
		if c.Args != "" {
			usageString += " " + c.Args
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}

		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))
		colInfo.Println(c.Desc)
	}
	fmt.Println()
}

// Main is the CLI entrypoint for cmd/qtforge.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			colArrow.Print("\n-> ")
			color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
			cancel()

			// a second signal or a stuck child forces the exit
			select {
			case <-sigs:
				colArrow.Print("\n-> ")
				color.Danger.Println("Second interrupt received. Forcing immediate exit.")
				os.Exit(130)
			case <-time.After(5 * time.Second):
				colArrow.Print("\n-> ")
				color.Danger.Println("Graceful shutdown timeout. Exiting.")
				os.Exit(130)
			}
		case <-ctx.Done():
		}
	}()

	if len(os.Args) < 2 {
		printHelp()
		return
	}

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		colError.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches one command.
func run(ctx context.Context, command string, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	s := newSettings(cfg)
	s.debugf("Loaded config %s\n", path)

	switch command {
	case "create":
		return handleCreateCommand(args, s, NewExecutor(ctx))

	case "merge":
		return handleMergeCommand(args, s)

	case "show":
		return handleShowCommand(args, s)

	case "checksum":
		checksumCmd := flag.NewFlagSet("checksum", flag.ContinueOnError)
		stringFlag(checksumCmd, &s.CustomDir, "c", "custom-dir", "directory containing custom patches")
		force := checksumCmd.Bool("force", false, "overwrite the checksums file without verifying it first")
		if err := checksumCmd.Parse(args); err != nil {
			return err
		}
		if err := s.finalize(); err != nil {
			return err
		}
		return handleChecksumCommand(s, *force, os.Stdin)

	case "pack":
		return handlePackCommand(args, s)

	case "upload":
		return handleUploadCommand(ctx, args, s)

	case "version", "--version":
		fmt.Printf("qtforge %s (built %s)\n", version, buildDate)
		return nil

	case "help", "-h", "--help":
		printHelp()
		return nil

	default:
		printHelp()
		return fmt.Errorf("unknown command %q", command)
	}
}
