// Package termcolor provides the colorized stderr banner helpers used by
// cmd/hpsd at startup and shutdown, distinct from the structured
// internal/log stream.
package termcolor

import "github.com/fatih/color"

func Cyan(s string) string {
	c := color.New(color.FgHiCyan)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func Green(s string) string {
	c := color.New(color.FgHiGreen)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func Magenta(s string) string {
	c := color.New(color.FgHiMagenta)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func Yellow(s string) string {
	c := color.New(color.FgHiYellow)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func Red(s string) string {
	c := color.New(color.FgHiRed)
	c.EnableColor()
	return c.SprintFunc()(s)
}
