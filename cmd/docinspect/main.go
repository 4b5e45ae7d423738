package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	ss "github.com/atom/superstring"
	"github.com/atom/superstring/buffer"
	"github.com/atom/superstring/markerindex"
)

func main() {
	path := flag.String("file", "", "file to load into the inspector (empty: an empty document)")
	flag.Parse()

	var buf *buffer.TextBuffer
	if *path == "" {
		buf = buffer.NewFromString("")
	} else {
		data, err := os.ReadFile(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "docinspect: %v\n", err)
			os.Exit(1)
		}
		buf = buffer.NewFromString(string(data))
	}

	markers := markerindex.New(markerindex.DefaultConfig())
	markers.Insert(1, ss.ZeroPoint, buf.Extent())

	if _, err := tea.NewProgram(newModel(buf, markers)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "docinspect: %v\n", err)
		os.Exit(1)
	}
}
