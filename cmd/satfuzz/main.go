package main

import (
	"os"

	"github.com/operator-framework/satfuzz/pkg/metrics"
)

func init() {
	metrics.Register()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
