package main

// Flag structs to decouple cobra from logic for testing.

// GlobalFlags holds the persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
}

type StatusFlags struct {
	JSON     bool
	Detailed bool // append the last journal event per service
}

type LogsFlags struct {
	Follow bool
}

type ServeFlags struct {
	Listen string
}
