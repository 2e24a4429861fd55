package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"droidfleet/cmd/fleetui/ui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "Control plane base URL")
	flag.Parse()

	client := ui.NewClient(strings.TrimRight(*addr, "/"))
	p := tea.NewProgram(ui.NewRootModel(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "fleetui: %v\n", err)
		os.Exit(1)
	}
}
