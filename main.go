package main

import (
	"os"
	"runtime"

	"github.com/mitchellh/cli"

	"github.com/fawkes74/jcon-cpp/internal/cmd"
)

var version = "0.1.0"

func main() {
	c := &cli.CLI{
		Name:    "jcon-cpp",
		Version: version,
		Args:    os.Args[1:],
	}

	ui := &cli.ColoredUi{
		ErrorColor: cli.UiColorRed,
		WarnColor:  cli.UiColorYellow,
		Ui: &cli.BasicUi{
			Writer:      os.Stdout,
			Reader:      os.Stdin,
			ErrorWriter: os.Stderr,
		},
	}

	buildInfo := &cmd.BuildInfo{
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
	}

	c.Commands = map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &cmd.ServeCommand{
				Ui:      ui,
				Version: version,
			}, nil
		},
		"call": func() (cli.Command, error) {
			return &cmd.CallCommand{
				Ui: ui,
			}, nil
		},
		"version": func() (cli.Command, error) {
			return &cmd.VersionCommand{
				Ui:        ui,
				Version:   version,
				BuildInfo: buildInfo,
			}, nil
		},
	}

	exitStatus, err := c.Run()
	if err != nil {
		ui.Error("Error: " + err.Error())
	}

	os.Exit(exitStatus)
}
