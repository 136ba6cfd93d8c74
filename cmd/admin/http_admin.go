package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const defaultDaemonURL = "http://127.0.0.1:8081"

func stateCmd(args []string) {
	fs := pflag.NewFlagSet("state", pflag.ExitOnError)
	baseURL := fs.String("url", defaultDaemonURL, "autocompleter base url")
	_ = fs.Parse(args)

	os.Exit(call(http.MethodGet, *baseURL, "/admin/v1/state", 5*time.Second))
}

func refreshCmd(args []string) {
	fs := pflag.NewFlagSet("refresh", pflag.ExitOnError)
	baseURL := fs.String("url", defaultDaemonURL, "autocompleter base url")
	_ = fs.Parse(args)

	os.Exit(call(http.MethodPost, *baseURL, "/admin/v1/refresh", 15*time.Second))
}

func schedulerCmd(args []string) {
	fs := pflag.NewFlagSet("scheduler", pflag.ExitOnError)
	baseURL := fs.String("url", defaultDaemonURL, "autocompleter base url")
	_ = fs.Parse(args)

	action := strings.TrimSpace(fs.Arg(0))
	if action != "start" && action != "stop" {
		fmt.Fprintln(os.Stderr, "usage: admin scheduler start|stop [--url ...]")
		os.Exit(2)
	}
	os.Exit(call(http.MethodPost, *baseURL, "/admin/v1/scheduler/"+action, 5*time.Second))
}

// call prints the response body and returns the process exit code.
func call(method, baseURL, path string, timeout time.Duration) int {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 2
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}
