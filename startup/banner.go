// Package startup prints the banner shown when the server starts.
package startup

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	reset = "\033[0m"
	bold  = "\033[1m"
	dim   = "\033[2m"
	cyan  = "\033[36m"
	green = "\033[32m"
	white = "\033[37m"

	indent = "    "
)

type BannerOptions struct {
	Version  string
	LocalURL string
	// Backend names the model provider and model, e.g. "gemini / gemini-2.0-flash".
	Backend string
	Store   string
}

type printer struct {
	w      io.Writer
	colors bool
}

// colorsEnabled reports whether stdout is a terminal and NO_COLOR is unset.
func colorsEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func (p printer) color(code, text string) string {
	if !p.colors {
		return text
	}
	return code + text + reset
}

func PrintBanner(opts BannerOptions) {
	writeBanner(os.Stdout, colorsEnabled(), opts)
}

func writeBanner(w io.Writer, colors bool, opts BannerOptions) {
	p := printer{w: w, colors: colors}
	fmt.Fprintln(w)

	logo := p.color(cyan, "◆") + "  " + p.color(bold+white, "O M N I A S S I S T")
	fmt.Fprintf(w, "%s%s%s%s\n", indent, logo, strings.Repeat(" ", 24), p.color(dim, opts.Version))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s%s  %s\n", indent, p.color(dim, "▸ Local"), p.color(green, opts.LocalURL))
	if opts.Backend != "" {
		fmt.Fprintf(w, "%s%s  %s\n", indent, p.color(dim, "▸ Model"), opts.Backend)
	}
	if opts.Store != "" {
		fmt.Fprintf(w, "%s%s  %s\n", indent, p.color(dim, "▸ Store"), opts.Store)
	}
	fmt.Fprintln(w)
}

// PrintFooter prints the footer with shutdown instructions.
func PrintFooter() {
	writeFooter(os.Stdout, colorsEnabled())
}

func writeFooter(w io.Writer, colors bool) {
	p := printer{w: w, colors: colors}
	fmt.Fprintf(w, "%s%s\n", indent, p.color(dim, "Press Ctrl+C to stop"))
	fmt.Fprintln(w)
}
