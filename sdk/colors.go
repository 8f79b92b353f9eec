package sdk

import "github.com/cespare/xxhash/v2"

// cursorPalette holds the colors used for remote cursors and selections.
// Picked for contrast on both light and dark editor themes.
var cursorPalette = []string{
	"#e06c75",
	"#98c379",
	"#e5c07b",
	"#61afef",
	"#c678dd",
	"#56b6c2",
	"#d19a66",
	"#abb2bf",
}

// UsernameColor maps a username to a stable palette color. Every member
// computes the same color for the same name without coordination.
func UsernameColor(username string) string {
	return cursorPalette[xxhash.Sum64String(username)%uint64(len(cursorPalette))]
}
