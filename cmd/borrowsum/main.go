// Command borrowsum lends a sequence it owns to PrintSum and prints the
// result.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jordanlewis/borrowsum"
)

func main() {
	if err := run(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(w io.Writer) error {
	numbers := borrowsum.Numbers()
	return borrowsum.PrintSum(w, numbers)
}
