package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/meigma/stow"
)

// terminalPrompt returns a FolderPrompt that asks on the terminal, or nil
// when prompting is off or stdin is not a terminal.
func terminalPrompt(enabled bool) stow.FolderPrompt {
	if !enabled || !term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec // fd fits in int
		return nil
	}
	in := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, missing string) (string, bool) {
		if ctx.Err() != nil {
			return "", false
		}
		fmt.Fprintf(os.Stderr, "container %s not found\nfolder to search (empty to give up): ", missing)
		line, err := in.ReadString('\n')
		if err != nil {
			return "", false
		}
		dir := strings.TrimSpace(line)
		return dir, dir != ""
	}
}
