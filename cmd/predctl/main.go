package main

import (
	"fmt"
	"os"

	"github.com/harveybc/prediction-provider-sub000/cmd/predctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
