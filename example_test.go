package diskcore_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/diskcore"
	"github.com/hupe1980/diskcore/device"
)

// Example demonstrates reading and writing cached blocks.
func Example() {
	ctx := context.Background()

	core, err := diskcore.New(diskcore.WithoutPageAllocator())
	if err != nil {
		log.Fatal(err)
	}
	defer core.Close()

	// Attach an in-memory device with 64 blocks
	dev := device.NewMemDevice(core.BlockSize(), 64)
	if err := core.AttachDevice(1, dev); err != nil {
		log.Fatal(err)
	}

	// Read locks the buffer and fills it from the device
	b, err := core.ReadBlock(ctx, 1, 7)
	if err != nil {
		log.Fatal(err)
	}

	copy(b.Data(), []byte("hello"))
	if err := core.WriteBlock(ctx, b); err != nil {
		log.Fatal(err)
	}
	core.Release(b)

	fmt.Println("block written")
	// Output: block written
}

// Example_pages demonstrates the physical page allocator.
func Example_pages() {
	core, err := diskcore.New(diskcore.WithPageArena(2, 8))
	if err != nil {
		log.Fatal(err)
	}
	defer core.Close()

	addr, ok := core.AllocPage()
	if !ok {
		log.Fatal("arena exhausted")
	}

	copy(core.PageBytes(addr), []byte("page data"))
	core.FreePage(addr)

	fmt.Println("free pages:", core.FreePageCount())
	// Output: free pages: 16
}
