// Command atomctl inspects and exercises segmented atom tables.
package main

func main() {
	execute()
}
