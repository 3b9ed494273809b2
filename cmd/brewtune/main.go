// Command brewtune proposes brewing recipes and learns from taste feedback.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/brewtune/internal/cli"
)

func main() {
	// BREWTUNE_* settings may live in a local .env file.
	_ = godotenv.Load()

	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.GetExitCode(err))
}
