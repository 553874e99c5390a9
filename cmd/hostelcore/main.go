// Command hostelcore runs the hostel allocation service and its
// administrative tooling.
package main

import (
	"os"
)

var exitFunc = os.Exit

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		exitFunc(1)
	}
}
