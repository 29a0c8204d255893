// Package browser starts browser automation sessions for the capture pipeline.
// Driver kinds are looked up in a Registry, a table of session factories
// keyed by name; the defaults drive Chrome through chromedp and go-rod.
package browser
