package main

import (
	"context"
	"fmt"
	"os"

	"github.com/taskflowhq/go-auth/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "taskflow-auth: %v\n", err)
		os.Exit(1)
	}
}
