package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"bookplayer/config"
	"bookplayer/debug"
	"bookplayer/metadata"
	"bookplayer/midiport"
	"bookplayer/player"
	"bookplayer/playlist"
	"bookplayer/theme"
	"bookplayer/tui"
)

func main() {
	logPath := flag.String("log", "", "write a debug log to this file")
	device := flag.String("device", "", "MIDI output device name")
	listDevices := flag.Bool("list-devices", false, "list MIDI output devices and exit")
	fullscreen := flag.Bool("fullscreen", false, "run in the alternate screen")
	resetPrefs := flag.Bool("reset-preferences", false, "discard saved preferences")
	resume := flag.Bool("resume", false, "restore the playlist from the last session")
	lang := flag.String("lang", "", "interface language")
	palettePath := flag.String("palette", "", "GIMP palette file for the color theme")
	flag.Parse()

	if *logPath != "" {
		if err := debug.Enable(*logPath); err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log: %v\n", err)
		}
		defer debug.Disable()
	}

	if *listDevices {
		for _, d := range midiport.List() {
			fmt.Printf("%d: %s\n", d.No, d.Label)
		}
		return
	}

	if *resetPrefs {
		if err := config.Reset(); err != nil {
			fmt.Fprintf(os.Stderr, "cannot reset preferences: %v\n", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot read config: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if *device != "" {
		cfg.DeviceName = *device
	}
	if *lang != "" {
		cfg.Language = *lang
	}
	if *fullscreen {
		cfg.Fullscreen = true
	}

	// Load theme
	palette := theme.Default()
	if *palettePath != "" {
		if p, err := theme.LoadGPL(*palettePath); err == nil {
			palette = p
		} else {
			fmt.Fprintf(os.Stderr, "cannot load palette: %v\n", err)
		}
	}
	th := theme.New(palette)

	out, err := midiport.OpenByName(cfg.DeviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, playing silently\n", err)
		out = midiport.Discard()
	}
	debug.Infof("main", "midi output: %s", out.String())

	orch := player.NewOrchestrator()
	orch.SetScheduler(player.NewScheduler(out))
	orch.SetPlayMode(cfg.RepeatAll)
	orch.SetStartWait(cfg.StartWait)

	worker := metadata.NewWorker()
	defer worker.Close()

	playFolder := loadArgs(orch.Playlist, flag.Args())
	if *resume {
		if path, err := lastPlaylistPath(); err == nil {
			if saved, err := playlist.Load(path); err == nil {
				for _, e := range saved.Items() {
					orch.Playlist.Add(e)
				}
			}
		}
	}
	if playFolder == "" {
		playFolder = cfg.PlayFolder
	}
	if playFolder != "" {
		cfg.PlayFolder = playFolder
		worker.Send(metadata.UpdateDatabasePath{Folder: playFolder})
	}

	orch.StartInfoLoop()
	defer orch.Close()

	m := tui.NewModel(orch, worker, th)
	opts := []tea.ProgramOption{}
	if cfg.Fullscreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(m, opts...)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// quitting mid-note leaves the instrument sounding otherwise
	midiport.Silence(out)

	// config first: it creates the config dir the playlist lands in
	if err := cfg.Save(); err != nil {
		debug.Warnf("main", "saving config: %v", err)
	}
	if orch.Playlist.Dirty() {
		if path, err := lastPlaylistPath(); err == nil {
			if err := orch.Playlist.Save(path); err != nil {
				debug.Warnf("main", "saving playlist: %v", err)
			}
		}
	}
}

func lastPlaylistPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "last.playlist"), nil
}

// loadArgs fills the playlist from command-line paths. Directories are
// walked for playable files; the first directory becomes the play
// folder that hosts the metadata database.
func loadArgs(list *playlist.List, args []string) string {
	folder := ""
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", arg, err)
			continue
		}
		if !info.IsDir() {
			if err := list.AddPathExpandingPlaylists(arg); err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", arg, err)
			}
			continue
		}
		if folder == "" {
			folder = arg
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if playable(path) {
				list.AddPath(path)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading %s: %v\n", arg, err)
		}
	}
	return folder
}

func playable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi", ".book":
		return true
	}
	return false
}
