// Command echofsctl is the client CLI for echofsd: it issues
// LOAD_PATH/UNLOAD_PATH/STATUS requests over the daemon's UNIX-domain
// socket and prints the response. Grounded on cmd/client/main.go's
// connect-then-request shape, generalized from the Kafka produce/fetch
// pair to this protocol's three request kinds.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bsc-ssrg/echofs-ng/internal/wire"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: echofsctl [--socket PATH] <load|unload|status> ...")
	fmt.Fprintln(os.Stderr, "  load   --backend ID --path PATH [--offset N] [--size N]")
	fmt.Fprintln(os.Stderr, "  unload --backend ID --path PATH")
	fmt.Fprintln(os.Stderr, "  status --task-id N")
}

func run(args []string) int {
	socket := pflag.String("socket", "/tmp/echofs-api.sock", "daemon UNIX socket path")
	backend := pflag.String("backend", "", "backend id")
	path := pflag.String("path", "", "resource path")
	offset := pflag.Int64("offset", 0, "byte offset")
	size := pflag.Uint64("size", 0, "byte size")
	taskID := pflag.Uint32("task-id", 0, "task id for status queries")
	pflag.CommandLine.Parse(args)

	rest := pflag.CommandLine.Args()
	if len(rest) == 0 {
		usage()
		return 1
	}

	var req wire.Request
	switch rest[0] {
	case "load":
		req = wire.Request{Kind: wire.LoadPath, BackendID: *backend, Path: *path, Offset: *offset, Size: *size}
	case "unload":
		req = wire.Request{Kind: wire.UnloadPath, BackendID: *backend, Path: *path, Offset: *offset, Size: *size}
	case "status":
		req = wire.Request{Kind: wire.Status, TaskID: *taskID}
	default:
		usage()
		return 1
	}

	conn, err := net.Dial("unix", *socket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "echofsctl: connecting to %s: %v\n", *socket, err)
		return 1
	}
	defer conn.Close()

	if err := wire.WriteRequest(conn, &req); err != nil {
		fmt.Fprintf(os.Stderr, "echofsctl: sending request: %v\n", err)
		return 1
	}

	resp, err := wire.ReadResponse(conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "echofsctl: reading response: %v\n", err)
		return 1
	}

	taskStr := ""
	if resp.TaskID != nil {
		taskStr = " task_id=" + strconv.FormatUint(uint64(*resp.TaskID), 10)
	}
	fmt.Printf("%s status=%s%s\n", resp.Type, resp.Status, taskStr)

	if resp.Type == wire.Rejected {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
