// Command echofsd is the EchoFS-NG daemon: it loads the YAML
// configuration, opens one PMEM pool per backend, wires a registry over
// those pools, and serves LOAD_PATH/UNLOAD_PATH/STATUS requests over a
// UNIX-domain socket (spec §6). Grounded on cmd/broker/main.go's
// init-then-signal-wait shape, generalized from one partition+broker
// pair to one registry per configured backend, all served by a single
// listener.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/bsc-ssrg/echofs-ng/internal/config"
	"github.com/bsc-ssrg/echofs-ng/internal/pmempool"
	"github.com/bsc-ssrg/echofs-ng/internal/registry"
	"github.com/bsc-ssrg/echofs-ng/internal/task"
	"github.com/bsc-ssrg/echofs-ng/internal/wire"
	"github.com/bsc-ssrg/echofs-ng/pkg/sizeunit"
)

const version = "0.1.0"

type flags struct {
	rootDir    string
	mountDir   string
	configFile string
	logFile    string
	foreground bool
	debug      bool
	showHelp   bool
	showVer    bool
}

func parseFlags() flags {
	var f flags
	pflag.StringVar(&f.rootDir, "root-dir", "", "backing store root directory")
	pflag.StringVar(&f.mountDir, "mount-dir", "", "FUSE mount point")
	pflag.StringVar(&f.configFile, "config-file", "", "YAML configuration file")
	pflag.StringVar(&f.logFile, "log-file", "", "log output file")
	pflag.BoolVar(&f.foreground, "foreground", false, "run in the foreground")
	pflag.BoolVar(&f.debug, "debug", false, "enable debug logging")
	pflag.BoolVar(&f.showHelp, "help", false, "show usage and exit")
	pflag.BoolVar(&f.showVer, "version", false, "show version and exit")
	pflag.Parse()
	return f
}

func buildLogger(f flags) (*zap.Logger, error) {
	var cfg zap.Config
	if f.debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if f.logFile != "" {
		cfg.OutputPaths = []string{f.logFile}
	}
	return cfg.Build()
}

type backend struct {
	id       string
	pool     *pmempool.Pool
	registry *registry.Registry
}

func openBackends(cfg *config.Config, log *zap.Logger) ([]*backend, error) {
	var backends []*backend
	for _, b := range cfg.Backends {
		capacity, err := b.CapacityBytes()
		if err != nil {
			return nil, err
		}
		slotSize := pmempool.DefaultSlotSize
		if b.SegmentSize != "" {
			if slotSize, err = sizeunit.Parse(b.SegmentSize); err != nil {
				return nil, err
			}
		}

		poolPath := b.DaxFS + "/" + b.ID + ".pool"
		pool, err := pmempool.Open(poolPath, capacity, slotSize)
		if err != nil {
			return nil, fmt.Errorf("opening backend %q: %w", b.ID, err)
		}

		reg := registry.New(pool, cfg.Global.Workers)
		log.Info("backend ready", zap.String("id", b.ID), zap.String("daxfs", b.DaxFS), zap.Int64("capacity", capacity))
		backends = append(backends, &backend{id: b.ID, pool: pool, registry: reg})
	}
	return backends, nil
}

func findBackend(backends []*backend, id string) *backend {
	for _, b := range backends {
		if b.id == id {
			return b
		}
	}
	return nil
}

func serve(socketPath string, backends []*backend, tracker *task.Tracker, log *zap.Logger) (*net.UnixListener, error) {
	addr, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, err
	}
	os.Remove(socketPath)
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleConn(conn, backends, tracker, log)
		}
	}()
	return ln, nil
}

func handleConn(conn net.Conn, backends []*backend, tracker *task.Tracker, log *zap.Logger) {
	defer conn.Close()
	for {
		req, err := wire.ReadRequest(conn)
		if err != nil {
			return
		}
		resp := handleRequest(req, backends, tracker)
		if err := wire.WriteResponse(conn, resp); err != nil {
			log.Warn("write response failed", zap.Error(err))
			return
		}
	}
}

func handleRequest(req *wire.Request, backends []*backend, tracker *task.Tracker) *wire.Response {
	switch req.Kind {
	case wire.LoadPath:
		b := findBackend(backends, req.BackendID)
		if b == nil {
			return &wire.Response{Type: wire.Rejected, Status: "no_such_path"}
		}
		id, err := b.registry.Load(req.Path, tracker)
		if err != nil {
			return &wire.Response{Type: wire.Rejected, Status: "internal_error"}
		}
		return &wire.Response{Type: wire.Accepted, TaskID: &id, Status: "success"}

	case wire.UnloadPath:
		b := findBackend(backends, req.BackendID)
		if b == nil {
			return &wire.Response{Type: wire.Rejected, Status: "no_such_path"}
		}
		id, err := b.registry.Unload(req.Path, req.Path, tracker)
		if err != nil {
			return &wire.Response{Type: wire.Rejected, Status: "internal_error"}
		}
		return &wire.Response{Type: wire.Accepted, TaskID: &id, Status: "success"}

	case wire.Status:
		rec, err := tracker.Status(req.TaskID)
		if err != nil {
			return &wire.Response{Type: wire.Rejected, Status: "no_such_task"}
		}
		return &wire.Response{Type: wire.Accepted, Status: statusString(rec)}

	default:
		return &wire.Response{Type: wire.Rejected, Status: "bad_request"}
	}
}

func statusString(rec *task.Record) string {
	switch rec.State {
	case task.Pending:
		return "task_pending"
	case task.InProgress:
		return "task_in_progress"
	case task.Completed:
		return "success"
	default:
		return "internal_error"
	}
}

func run() int {
	f := parseFlags()
	if f.showHelp {
		pflag.Usage()
		return 0
	}
	if f.showVer {
		fmt.Println("echofsd", version)
		return 0
	}
	if f.configFile == "" {
		fmt.Fprintln(os.Stderr, "echofsd: --config-file is required")
		return 1
	}

	log, err := buildLogger(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "echofsd: building logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	cfg, err := config.Load(f.configFile)
	if err != nil {
		log.Error("loading config", zap.Error(err))
		return 1
	}
	if f.rootDir != "" {
		cfg.Global.RootDir = f.rootDir
	}
	if f.mountDir != "" {
		cfg.Global.MountDir = f.mountDir
	}

	backends, err := openBackends(cfg, log)
	if err != nil {
		log.Error("opening backends", zap.Error(err))
		return 1
	}
	defer func() {
		for _, b := range backends {
			b.registry.Stop()
			b.pool.Close()
		}
	}()

	tracker := task.NewTracker()
	ln, err := serve("/tmp/echofs-api.sock", backends, tracker, log)
	if err != nil {
		log.Error("starting listener", zap.Error(err))
		return 1
	}
	defer ln.Close()

	log.Info("echofsd ready", zap.String("mount_dir", cfg.Global.MountDir))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	return 0
}

func main() {
	os.Exit(run())
}
