// Command blockvault is the operator-facing CLI over the engine
// packages in internal/: backup, list, delete, compact, and recreate.
package main

func main() {
	Execute()
}
