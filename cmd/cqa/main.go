// Command cqa answers questions about uploaded contract documents, grounded
// in a local vector index with citations back to the source text.
package main

import (
	"fmt"
	"os"

	"github.com/caselight/cqa-go/cmd/cqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
