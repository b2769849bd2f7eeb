// Package directive extracts talk and command segments from model output.
package directive

import (
	"iter"
	"regexp"
)

var (
	talkPattern    = regexp.MustCompile(`(?s)<talk>(.*?)</talk>`)
	commandPattern = regexp.MustCompile(`(?s)<run_command>(.*?)</run_command>`)
)

// Directives holds every segment found in one model response.
type Directives struct {
	Talk     []string
	Commands []string
}

// Talks yields the interior of every <talk>...</talk> block in order of appearance.
func Talks(text string) iter.Seq[string] {
	return segments(talkPattern, text)
}

// Commands yields the interior of every <run_command>...</run_command> block
// in order of appearance.
func Commands(text string) iter.Seq[string] {
	return segments(commandPattern, text)
}

// Parse collects both segment kinds eagerly.
func Parse(text string) Directives {
	var d Directives
	for s := range Talks(text) {
		d.Talk = append(d.Talk, s)
	}
	for s := range Commands(text) {
		d.Commands = append(d.Commands, s)
	}
	return d
}

// segments walks matches one at a time so callers can stop early.
func segments(re *regexp.Regexp, text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for {
			loc := re.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			if !yield(rest[loc[2]:loc[3]]) {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}
