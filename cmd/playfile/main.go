package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"bookplayer/book"
	"bookplayer/debug"
	"bookplayer/midiport"
	"bookplayer/player"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "play":
		play(os.Args[2:])
	case "info":
		info(os.Args[2:])
	case "convert":
		convert(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Println("Headless player")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                      - List MIDI output ports")
	fmt.Println("  play [-device N] files... - Play files back to back")
	fmt.Println("  info files...             - Print playable duration")
	fmt.Println("  convert in.book out.mid   - Compile a book to a MIDI file")
}

func listPorts() {
	devices := midiport.List()
	if len(devices) == 0 {
		fmt.Println("no MIDI output ports")
		return
	}
	for _, d := range devices {
		fmt.Printf("%d: %s\n", d.No, d.Label)
	}
}

func play(args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	deviceNo := fs.Int("device", 0, "output port number")
	wait := fs.Duration("wait", time.Second, "delay before the first note")
	logPath := fs.String("log", "", "debug log file")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Println("nothing to play")
		return
	}
	if *logPath != "" {
		if err := debug.Enable(*logPath); err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log: %v\n", err)
		}
		defer debug.Disable()
	}

	out, err := midiport.OpenByIndex(*deviceNo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	sched := player.NewScheduler(out)

	// Ctrl-C cancels the current file and quits cleanly
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for _, path := range fs.Args() {
		fmt.Printf("playing %s\n", path)
		sched.Start(path, *wait)

		done := false
		for !done {
			select {
			case <-sig:
				sched.Stop()
			case resp := <-sched.Responses():
				switch r := resp.(type) {
				case player.FilePlayStarted:
					fmt.Printf("  %d notes\n", len(r.Notes))
				case player.CurrentPlayTime:
					fmt.Printf("\r  %8s", r.Time.Round(time.Second))
				case player.EndOfFile:
					fmt.Println("\r  done    ")
					done = true
				case player.FileCancelled:
					fmt.Println("\r  cancelled")
					// the interrupt may land between a note-on and its
					// note-off, so quiet the instrument before leaving
					midiport.Silence(out)
					return
				}
			}
		}
	}
}

func info(args []string) {
	for _, path := range args {
		d, err := player.FileInfo(path)
		if err != nil {
			fmt.Printf("%s: %v\n", path, err)
			continue
		}
		fmt.Printf("%s: %s\n", path, d.Round(time.Second))
	}
}

func convert(args []string) {
	if len(args) != 2 {
		usage()
		return
	}
	in, outPath := args[0], args[1]

	f, err := os.Open(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	vb, err := book.ReadBookStream(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", in, err)
		os.Exit(1)
	}

	conv, err := book.ResolveConversion(vb, filepath.Dir(in))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	s, unmapped, err := book.Compile(vb, conv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compiling %s: %v\n", in, err)
		os.Exit(1)
	}
	if unmapped > 0 {
		fmt.Printf("warning: %d events had no mapped track\n", unmapped)
	}
	if err := s.WriteFile(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", outPath)
}
