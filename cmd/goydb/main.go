package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/goydb/mrindex/pkg/goydb"
)

func main() {
	cfg, err := goydb.NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	cfg.ParseFlags()

	gdb, err := cfg.BuildDatabase()
	if err != nil {
		log.Fatal(err)
	}
	defer gdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = gdb.Run(ctx, cfg.ListenAddress)
	if err != nil {
		log.Println(err)
	}
}
