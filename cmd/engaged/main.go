// Command engaged runs the comment monitoring and auto-reply engine.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
