package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/term"

	"github.com/ligun0805/bundle-submit/internal/config"
)

func stdinIsTerminal() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

func readPassword(prompt string) string {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		die("failed to read password: " + err.Error())
	}
	return strings.TrimSpace(string(b))
}

func maskHex(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return "(ephemeral)"
	}
	if len(h) <= 10 {
		return "***"
	}
	return h[:6] + "…" + h[len(h)-4:]
}

// setupLogging installs a terminal handler on stderr; colour only on a TTY.
func setupLogging(cfg config.Settings) {
	lvl, _ := cfg.Level()
	useColor := term.IsTerminal(int(os.Stderr.Fd()))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, useColor)))
}

// die prints an error and waits for Enter before exiting when attached to a
// terminal, so a double-clicked console does not vanish.
func die(message string) {
	fmt.Fprintln(os.Stderr, "Error:", message)
	if stdinIsTerminal() {
		fmt.Fprint(os.Stderr, "Press Enter to close...")
		_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')
	}
	os.Exit(exitConfig)
}
