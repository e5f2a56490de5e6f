package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// echotest is a misbehaving child for exercising the supervisor by hand:
// it can chatter on both streams, crash, grow its memory or ignore SIGTERM.
type flagOptions struct {
	RunDuration   int  `long:"run-duration" description:"Seconds to run before a clean exit, 0 runs until signalled"`
	CrashAfter    int  `long:"crash-after" description:"Seconds to run before exiting with --exit-code"`
	ExitCode      int  `long:"exit-code" default:"1" description:"Exit code used by --crash-after"`
	MemoryMB      int  `long:"memory-mb" description:"Megabytes to allocate at startup"`
	GrowMB        int  `long:"grow-mb" description:"Megabytes to allocate on every tick"`
	IntervalMS    int  `long:"interval-ms" default:"1000" description:"Tick interval in milliseconds"`
	IgnoreSigterm bool `long:"ignore-sigterm" description:"Keep running on SIGTERM so the supervisor has to escalate"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Echotest starting, pid: %d, opts: %+v\n", os.Getpid(), opts)

	ctx := context.Background()
	if opts.RunDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	var crash <-chan time.Time
	if opts.CrashAfter > 0 {
		crash = time.After(time.Duration(opts.CrashAfter) * time.Second)
	}

	var held [][]byte
	heldMB := 0
	allocate := func(mb int) {
		block := make([]byte, mb*1024*1024)
		// Touch every page so it counts toward RSS
		for i := 0; i < len(block); i += 4096 {
			block[i] = 1
		}
		held = append(held, block)
		heldMB += mb
	}
	if opts.MemoryMB > 0 {
		allocate(opts.MemoryMB)
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	interval := time.Duration(opts.IntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-ticker.C:
			if opts.GrowMB > 0 {
				allocate(opts.GrowMB)
			}
			fmt.Printf("tick %d, held: %d MB\n", tick, heldMB)
			if tick%5 == 0 {
				fmt.Fprintf(os.Stderr, "warning at tick %d\n", tick)
			}
		case receivedSignal := <-sig:
			if opts.IgnoreSigterm && receivedSignal == syscall.SIGTERM {
				fmt.Fprintf(os.Stderr, "Echotest ignoring signal: %v\n", receivedSignal)
				continue
			}
			fmt.Printf("Echotest received signal: %v\n", receivedSignal)
			return
		case <-crash:
			fmt.Fprintf(os.Stderr, "Echotest crashing with exit code %d\n", opts.ExitCode)
			os.Exit(opts.ExitCode)
		case <-ctx.Done():
			fmt.Printf("Echotest finished\n")
			return
		}
	}
}
