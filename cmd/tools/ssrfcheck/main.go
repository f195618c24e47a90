// Package main implements ssrfcheck, an operator tool for exercising the
// fetch gateway's URL policy and fetcher without running the API.
//
// Usage:
//
//	go run ./cmd/tools/ssrfcheck check http://169.254.169.254/ https://example.com/
//	go run ./cmd/tools/ssrfcheck check --block internal.example.com http://internal.example.com/
//	go run ./cmd/tools/ssrfcheck normalize 0x7f.1 2130706433 017700000001
//	go run ./cmd/tools/ssrfcheck fetch --max-redirects 3 https://example.com/
//
// check exits with status 1 when any URL is rejected, so it can gate
// blocklist changes in CI.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
