// Command shopcache serves a small shop catalog through guardcache.
//
//	shopcache serve --redis-addr localhost:6379 --strategy logical
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
