package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/PatchLens/go-callseq/callseq"
	"github.com/PatchLens/go-callseq/callseq/cmd"
)

func main() {
	log.SetFlags(log.LstdFlags)

	config, err := cmd.ParseFlags()
	if err != nil {
		log.Fatalf("%s%v", callseq.ErrorLogPrefix, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := callseq.Run(ctx, config, os.Stdout); err != nil {
		stop()
		log.Fatalf("%s%v", callseq.ErrorLogPrefix, err)
	}
}
