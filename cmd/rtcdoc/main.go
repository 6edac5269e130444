package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/drpcorg/rtcdoc/config"
	"github.com/drpcorg/rtcdoc/rooms"
	"github.com/drpcorg/rtcdoc/store"
	"github.com/drpcorg/rtcdoc/utils"
)

const Version = "rtcdoc 0.1.0"

const usage = `rtcdoc: replicated documents.

Usage:
    rtcdoc [--config=<path>] [repl]
    rtcdoc [--config=<path>] exec <room> <command>...
    rtcdoc [--config=<path>] rooms
    rtcdoc --print-config [--config=<path>]
    rtcdoc -h | --help
    rtcdoc --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --config=<path>    YAML config file [default: rtcdoc.yaml].
    --print-config     Print the effective config and exit.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		fail(err)
	}
	path, _ := opts.String("--config")
	cfg, err := config.Load(path)
	if err != nil {
		fail(err)
	}
	if printConfig, _ := opts.Bool("--print-config"); printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			fail(err)
		}
		_, _ = os.Stdout.Write(data)
		return
	}
	if err = run(cfg, opts); err != nil {
		fail(err)
	}
}

func fail(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func run(cfg config.Config, opts docopt.Opts) (err error) {
	level, err := utils.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return err
	}
	log := utils.NewDefaultLogger(level)

	st, err := store.Open(cfg.Store.Path, store.Options{
		HistoryLimit: cfg.Store.HistoryLimit,
		NoSync:       cfg.Store.NoSync,
		CacheSize:    cfg.Store.CacheSize,
		Logger:       log.Named("store"),
	})
	if err != nil {
		return err
	}
	defer st.Close()

	hub := rooms.NewHub(st, rooms.Options{
		Src:      cfg.Src,
		FeedSize: cfg.Rooms.FeedSize,
		Logger:   log.Named("rooms"),
	})
	defer hub.Close()

	repl := NewREPL(hub, st, log)

	if roomsCmd, _ := opts.Bool("rooms"); roomsCmd {
		out, err := repl.Execute("rooms")
		if err == nil && out != "" {
			fmt.Println(out)
		}
		return err
	}
	if execCmd, _ := opts.Bool("exec"); execCmd {
		room, _ := opts.String("<room>")
		words, _ := opts["<command>"].([]string)
		if _, err = repl.Execute("open " + room); err != nil {
			return err
		}
		out, err := repl.Execute(strings.Join(words, " "))
		if err == nil && out != "" {
			fmt.Println(out)
		}
		return err
	}

	if cfg.Admin.Listen != "" {
		adm := startAdmin(cfg.Admin.Listen, newRouter(newRegistry(st), hub), log.Named("admin"))
		defer adm.Stop()
	}
	if err = repl.Open(cfg.REPL); err != nil {
		return err
	}
	defer repl.Close()
	return repl.Run()
}
