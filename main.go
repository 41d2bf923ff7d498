package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/lefinal/minigame-host/app"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configFilename := flag.String("config", "", "path to the JSON config file")
	flag.Parse()
	config, err := app.LoadConfig(*configFilename)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err = app.NewApp(config).Boot(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
