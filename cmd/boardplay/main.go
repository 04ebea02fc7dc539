// Command boardplay is a terminal viewer for a running board daemon. It
// polls the board while sequences play and drives playback from the keyboard.
package main

import (
	"flag"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tactiboard/engine/internal/api"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "board daemon base URL")
	interval := flag.Duration("interval", 50*time.Millisecond, "poll interval while a sequence plays")
	flag.Parse()

	client := api.New(*addr, "")
	if err := client.Healthcheck(); err != nil {
		log.Fatalf("board daemon at %s is not reachable: %v", *addr, err)
	}

	p := tea.NewProgram(
		initialModel(client, *interval),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}
