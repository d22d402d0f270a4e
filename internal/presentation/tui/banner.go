package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`             _       _     _`, "#34d399"},
	{` _ __   __ _| |_ ___| |__ | |__   __ _ _   _`, "#2dd4bf"},
	{`| '_ \ / _' | __/ __| '_ \| '_ \ / _' | | | |`, "#22d3ee"},
	{`| |_) | (_| | || (__| | | | |_) | (_| | |_| |`, "#38bdf8"},
	{`| .__/ \__,_|\__\___|_| |_|_.__/ \__,_|\__, |`, "#60a5fa"},
	{`|_|                                    |___/`, "#818cf8"},
}

// PrintBanner writes the patchbay banner and version to w, coloured for
// the terminal's profile. Non-terminals get plain text.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, out.String("  v"+v).Faint())
	}
	fmt.Fprintln(w)
}
