// heapdemo exercises the heap engine directly from the command line: a
// random sequence of malloc/free operations driven by flags, reporting
// fragmentation and peak-utilization stats at the end.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/tgrossb/corelab/heap"
)

func main() {
	n := flag.Int("n", 1000, "number of malloc/free operations to perform")
	seed := flag.Int64("seed", 1, "PRNG seed")
	flag.Parse()

	h := heap.New(heap.Config{}, 0)
	rng := rand.New(rand.NewSource(*seed))

	var live []heap.Ptr
	for i := 0; i < *n; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			idx := rng.Intn(len(live))
			h.Free(live[idx])
			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}
		size := rng.Intn(500) + 1
		p := h.Malloc(size)
		if p == heap.Nil {
			if h.NoMemory() {
				fmt.Fprintln(os.Stderr, "heapdemo: out of memory")
			} else if err := h.LastError(); err != nil {
				fmt.Fprintln(os.Stderr, "heapdemo:", err)
			}
			continue
		}
		live = append(live, p)
	}

	fmt.Printf("live blocks:          %d\n", len(live))
	fmt.Printf("internal fragmentation: %.4f\n", h.InternalFragmentation())
	fmt.Printf("peak utilization:       %.4f\n", h.PeakUtilization())
}
