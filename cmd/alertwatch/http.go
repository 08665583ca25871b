package main

import (
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"

	"github.com/NarenCandy/wild-animal-detection/internal/client"
)

// newClient builds an API client. With debug set, the returned DebugDoer
// records every exchange so it can be printed once the viewer exits.
func newClient(baseURL string, timeout int, debug bool) (*client.Client, goahttp.DebugDoer, error) {
	var (
		doer     goahttp.Doer
		debugger goahttp.DebugDoer
	)
	{
		doer = &http.Client{Timeout: time.Duration(timeout) * time.Second}
		if debug {
			debugger = goahttp.NewDebugDoer(doer)
			doer = debugger
		}
	}

	c, err := client.New(baseURL, doer)
	if err != nil {
		return nil, nil, err
	}
	return c, debugger, nil
}
