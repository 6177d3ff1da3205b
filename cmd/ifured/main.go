// Package main provides the ifured command-line driver.
package main

import (
	"context"
	"os"

	"github.com/dukex/ifured/pkg/log"
)

func main() {
	err := NewApp().Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("ifured").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
