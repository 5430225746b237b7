package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Helcaraxan/formulary/internal/driver"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := driver.Root(driver.NewCommonOpts()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		cancel()
		os.Exit(1)
	}
}
