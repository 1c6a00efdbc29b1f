package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only the log level
// and the command list are applied live; every other change is reported
// through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	CommandsChanged bool
	CommandChanges  []CommandDiff

	// RestartRequired lists the top-level sections whose changes take
	// effect only after a restart.
	RestartRequired []string
}

// CommandDiff describes one command keyed by phrase.
type CommandDiff struct {
	Phrase          string
	Added           bool
	Removed         bool
	ResponseChanged bool
}

// Changed reports whether d carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.CommandsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldCmds := make(map[string]CommandConfig, len(old.Commands))
	for _, c := range old.Commands {
		oldCmds[c.Phrase] = c
	}
	newCmds := make(map[string]CommandConfig, len(new.Commands))
	for _, c := range new.Commands {
		newCmds[c.Phrase] = c
		prev, ok := oldCmds[c.Phrase]
		switch {
		case !ok:
			d.CommandChanges = append(d.CommandChanges, CommandDiff{Phrase: c.Phrase, Added: true})
		case prev != c:
			d.CommandChanges = append(d.CommandChanges, CommandDiff{Phrase: c.Phrase, ResponseChanged: true})
		}
	}
	for _, c := range old.Commands {
		if _, ok := newCmds[c.Phrase]; !ok {
			d.CommandChanges = append(d.CommandChanges, CommandDiff{Phrase: c.Phrase, Removed: true})
		}
	}
	// Reordering changes which matcher wins.
	d.CommandsChanged = len(d.CommandChanges) > 0 || !reflect.DeepEqual(old.Commands, new.Commands)

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"audio", old.Audio, new.Audio},
		{"voice", old.Voice, new.Voice},
		{"onset", old.Onset, new.Onset},
		{"providers", old.Providers, new.Providers},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
