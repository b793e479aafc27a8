//go:build debug && (linux || freebsd)

package main

import (
	"net/http"
	_ "net/http/pprof"
)

func applyTagsOverrides(cfg *action) {
	cfg.verbose = true
	cfg.notify = false

	go func() {
		addr := "127.0.0.1:6060"
		if err := http.ListenAndServe(addr, nil); err != nil {
			panic(err)
		}
	}()
}
