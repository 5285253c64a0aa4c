// Package ansi holds the escape codes used for terminal output.
package ansi

// SGR (Select Graphic Rendition) codes.
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
)

// ClearLine erases the whole current line without moving the cursor.
const ClearLine = "\033[2K"

// Rewrite returns the prefix that moves to column zero and clears the line,
// so s replaces whatever the previous progress update printed.
func Rewrite(s string) string {
	return "\r" + ClearLine + s
}

// Paint wraps s in code and a trailing Reset. An empty code returns s as is.
func Paint(code, s string) string {
	if code == "" {
		return s
	}
	return code + s + Reset
}
