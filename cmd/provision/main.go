package main

import (
	"context"
	"log"
	"os"

	"github.com/viralforge/sessionauth/internal/app/bootstrap"
	"github.com/viralforge/sessionauth/internal/provision"
)

func main() {
	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, "configs/default.yaml")
	if err != nil {
		log.Fatalf("bootstrap provision runtime: %v", err)
	}
	defer runtime.Close(ctx)

	if _, err := provision.NewPrompter(os.Stdin, os.Stdout, runtime.Service()).Run(ctx); err != nil {
		runtime.Close(ctx)
		log.Fatalf("provision user: %v", err)
	}
}
