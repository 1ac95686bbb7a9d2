// Command rfloppy talks to a physical floppy drive through a USB
// Greaseweazle, SuperCard Pro, or KryoFlux adapter: read, write, format,
// erase, and report status, moving disk images in the formats the hfe
// package reads and writes (HFE, DMK, ADF).
package main

import "github.com/retrofloppy/dmk/adapter"

func main() {
	adapter.Execute()
}
