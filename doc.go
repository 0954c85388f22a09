/*
Package poolserver is a small HTTP/1.1 server built around a fixed pool of
workers.

One accept loop hands every inbound connection to whichever of N workers
is idle. The worker reads the request, resolves it against a frozen route
table, runs the handler and writes the response. Handlers never run on
more than N goroutines at once, and a panicking handler costs one 500
response, not a worker.

Quick Start

	package main

	import (
	    "log"

	    "github.com/searchktools/poolserver/app"
	    "github.com/searchktools/poolserver/config"
	    "github.com/searchktools/poolserver/core/http"
	)

	func main() {
	    cfg := config.Default()
	    application := app.New(cfg)

	    application.Server().GET("/hello", func(req *http.Request) *http.Response {
	        return http.Text(200, "Hello, World!")
	    })

	    if err := application.Run(); err != nil {
	        log.Fatal(err)
	    }
	}

Modules

  - app: process lifecycle, banner and signal handling
  - config: defaults, validation, JSON and environment loading
  - core: dispatcher, workers and the server state machine
  - core/http: request and response model, HTTP/1.1 reader and writer
  - core/router: exact and pattern routes with :param and *catchAll
  - core/pools: the generic worker pool and bufio pools
  - cmd/poolserver: the command line entry point

Lifecycle

A Server moves Created -> Running -> Draining -> Stopped. Stop closes the
listener, lets every worker finish the connection it holds and returns
once all of them have exited. Connections accepted after draining began
are answered with 503.
*/
package poolserver
