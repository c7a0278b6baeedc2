package main

import (
	"flag"
	"fmt"
	"os"

	intrnl "roomchat/internal"
	"roomchat/internal/app"
)

func main() {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print the version and exit")
	cfg, err := app.ParseClientConfig(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *showVersion {
		fmt.Println(intrnl.Version)
		return
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
