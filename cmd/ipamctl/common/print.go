package common

import (
	"fmt"
	"io"
	"strings"

	"github.com/vfabric/privateip/api"
)

// PrintHeader prints a tab separated header line.
func PrintHeader(w io.Writer, columns ...string) {
	fmt.Fprintln(w, strings.Join(columns, "\t"))
}

// FprintfIfNotEmpty prints only if `v` is not empty.
func FprintfIfNotEmpty(w io.Writer, format string, v interface{}) {
	if v != nil && v != "" {
		fmt.Fprintf(w, format, v)
	}
}

// PrintAllocations prints one line per allocation.
func PrintAllocations(w io.Writer, allocs []*api.Allocation) {
	PrintHeader(w, "Address", "State", "Subnet", "Range")
	for _, a := range allocs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Address, a.State, a.SubnetID, a.RangeID)
	}
}
