// Command crew plans agent teams for tasks and keeps long-running agent
// sessions recoverable.
package main

func main() {
	Execute()
}
