// Command verify compares a hardware trace against the golden trace.
//
// Exit status: 0 on a full match, 1 on any mismatch or an empty comparison,
// 2 when a trace is missing or malformed.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/uhyunpark/itchmoe/pkg/trace"
)

const (
	exitPass  = 0
	exitFail  = 1
	exitInput = 2
)

func main() {
	golden := flag.String("golden", "golden_trace.csv", "golden model trace")
	hardware := flag.String("hardware", "hw_trace.csv", "hardware trace")
	tolerance := flag.Float64("tolerance", trace.DefaultTolerance, "allowed confidence difference")
	selfTest := flag.Bool("self-test", false, "compare the golden trace with itself")
	flag.Parse()

	os.Exit(run(*golden, *hardware, *tolerance, *selfTest, os.Stdout, os.Stderr))
}

func run(goldenPath, hwPath string, tol float64, selfTest bool, out, errOut io.Writer) int {
	if tol < 0 {
		fmt.Fprintf(errOut, "ERROR: tolerance must be >= 0, got %g\n", tol)
		return exitInput
	}
	if selfTest {
		hwPath = goldenPath
		fmt.Fprintln(out, "Self-test mode: comparing golden trace against itself")
	}

	golden, err := trace.ReadFile(goldenPath)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: golden trace: %v\n", err)
		return exitInput
	}
	hw, err := trace.ReadFile(hwPath)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: hardware trace: %v\n", err)
		return exitInput
	}

	rep := trace.Compare(golden, hw, tol)
	rep.Print(out, goldenPath, hwPath)
	if !rep.Pass() {
		return exitFail
	}
	return exitPass
}
