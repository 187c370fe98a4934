package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"plantid-server-go/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [Boot] starting plantid-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background(), bootstrap.Options{}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "plantid-server failed: %v\n", err)
		os.Exit(1)
	}
}
