// Kera - Multi-Target Inventory Collector
// Collect. Report. Done.
package main

func main() {
	Execute()
}
