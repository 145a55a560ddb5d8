package main

import (
	"fmt"
	"os"
)

func main() {
	err := rootCmd.Execute()
	if logFilePointer != nil {
		logFilePointer.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
