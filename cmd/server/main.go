package main

import (
	"context"
	"flag"
	"log"
	"strconv"

	"formation/server/internal/app"
)

func main() {
	cfg := app.DefaultConfig()
	flag.IntVar(&cfg.Port, "port", 0, "port to listen on (default: $PORT, then 3000)")
	flag.StringVar(&cfg.ClientDir, "client", cfg.ClientDir, "directory of static client assets")
	flag.Parse()

	// A bare positional argument also sets the port: `server 8080`.
	if cfg.Port == 0 && flag.NArg() > 0 {
		if port, err := strconv.Atoi(flag.Arg(0)); err == nil {
			cfg.Port = port
		}
	}

	if err := app.Run(context.Background(), cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
