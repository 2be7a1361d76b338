// Command kimberlite runs and administers one replica of a Kimberlite
// cluster.
package main

import (
	"fmt"
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintln(os.Stderr, "kimberlite: GOMAXPROCS tuning skipped:", err)
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(); err != nil {
		fmt.Fprintln(os.Stderr, "kimberlite: GOMEMLIMIT tuning skipped:", err)
	}
	Execute()
}
