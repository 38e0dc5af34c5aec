package ui

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
)

// Run-wide error and warning counters. They feed the runtime status file.
var (
	runErrorCount   atomic.Int64
	runWarningCount atomic.Int64
)

// RunErrorCount returns the number of errors printed during this run.
func RunErrorCount() int { return int(runErrorCount.Load()) }

// RunWarningCount returns the number of warnings printed during this run.
func RunWarningCount() int { return int(runWarningCount.Load()) }

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorGreen, SymbolCheck, ColorReset, msg, ColorReset)
}

// PrintError prints an error message to stderr and increments the error counter.
func PrintError(msg string) {
	runErrorCount.Add(1)
	fmt.Fprintf(os.Stderr, "%s%s%s %s%s\n", ColorRed, SymbolCross, ColorReset, msg, ColorReset)
}

// PrintInfo prints an info message.
func PrintInfo(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorBlue, SymbolInfo, ColorReset, msg, ColorReset)
}

// PrintWarning prints a warning message and increments the warning counter.
func PrintWarning(msg string) {
	runWarningCount.Add(1)
	fmt.Printf("%s%s%s %s%s\n", ColorYellow, SymbolWarning, ColorReset, msg, ColorReset)
}

// PrintDownload prints a download message.
func PrintDownload(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorCyan, SymbolDownload, ColorReset, msg, ColorReset)
}

// PrintUpload prints an upload message.
func PrintUpload(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorPurple, SymbolUpload, ColorReset, msg, ColorReset)
}

// PrintMusic prints a music message.
func PrintMusic(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorGreen, SymbolMusic, ColorReset, msg, ColorReset)
}

// PrintKey prints a credential-related message (activation bytes, tokens).
func PrintKey(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorYellow, SymbolKey, ColorReset, msg, ColorReset)
}

// Debugf prints a dimmed diagnostic line when Verbose is set.
func Debugf(format string, args ...any) {
	if !Verbose {
		return
	}
	fmt.Fprintf(os.Stderr, "  %s%s%s\n", ColorPurple, fmt.Sprintf(format, args...), ColorReset)
}

// Verbose enables Debugf output. It is set from the --debug flag.
var Verbose bool

// MaskSecret shows the first and last four characters of a credential.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 8) + s[len(s)-4:]
}

// DescribeSession returns a human-readable session status.
func DescribeSession(authenticated bool, cookieCount int) string {
	switch {
	case authenticated:
		return fmt.Sprintf("Authenticated (%d cookies)", cookieCount)
	case cookieCount > 0:
		return fmt.Sprintf("Unverified (%d cookies)", cookieCount)
	default:
		return "Not configured"
	}
}
