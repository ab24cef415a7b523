// Package cli is a small flag and help-page framework for the salc command.
// Besides plain flags it supports flag groups, families like -W<warning> and
// -F<feature> whose members come from a table and share one help section.
package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s'", s)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }

type Flag struct {
	Name      string
	Shorthand string
	Usage     string
	Value     Value
	DefValue  string
	ArgName   string
}

// FlagGroupEntry is one member of a -X<name>/-Xno-<name> family.
type FlagGroupEntry struct {
	Name     string
	Usage    string
	Enabled  *bool
	Disabled *bool
}

// FlagGroup is a family of toggles sharing a single-letter prefix, listed
// together on the help page with their default state.
type FlagGroup struct {
	Title   string
	Prefix  string
	Kind    string
	Entries []FlagGroupEntry
}

type FlagSet struct {
	name   string
	flags  map[string]*Flag
	shorts map[string]*Flag
	order  []*Flag
	groups []FlagGroup
	args   []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:   name,
		flags:  make(map[string]*Flag),
		shorts: make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, argName string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, argName)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) List(p *[]string, name, shorthand, usage, argName string) {
	f.Var(&listValue{p}, name, shorthand, usage, "", argName)
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, argName string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic("flag redefined: " + name)
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ArgName: argName}
	f.flags[name] = flag
	f.order = append(f.order, flag)
	if shorthand != "" {
		if _, ok := f.shorts[shorthand]; ok {
			panic("shorthand redefined: " + shorthand)
		}
		f.shorts[shorthand] = flag
	}
}

// AddFlagGroup registers an -X<name>/-Xno-<name> pair per entry. The group
// flags are rendered in their own help section, not among the options.
func (f *FlagSet) AddFlagGroup(title, prefix, kind string, entries []FlagGroupEntry) {
	for i := range entries {
		e := &entries[i]
		if e.Enabled != nil {
			f.Var(&boolValue{e.Enabled}, prefix+e.Name, "", e.Usage, "false", "")
		}
		if e.Disabled != nil {
			f.Var(&boolValue{e.Disabled}, prefix+"no-"+e.Name, "", "Disable '"+e.Name+"'", "false", "")
		}
	}
	f.groups = append(f.groups, FlagGroup{Title: title, Prefix: prefix, Kind: kind, Entries: entries})
}

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) isGroupFlag(name string) bool {
	for _, g := range f.groups {
		for _, e := range g.Entries {
			if name == g.Prefix+e.Name || name == g.Prefix+"no-"+e.Name {
				return true
			}
		}
	}
	return false
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			break
		}
		name := strings.TrimLeft(arg, "-")
		var inline string
		hasInline := false
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name, inline, hasInline = name[:eq], name[eq+1:], true
		}

		flag := f.flags[name]
		if flag == nil && !strings.HasPrefix(arg, "--") {
			flag = f.shorts[name]
		}
		if flag == nil {
			return fmt.Errorf("unknown flag: %s", arg)
		}
		switch {
		case hasInline:
			if err := flag.Value.Set(inline); err != nil {
				return err
			}
		default:
			if _, isBool := flag.Value.(*boolValue); isBool {
				if err := flag.Value.Set(""); err != nil {
					return err
				}
				continue
			}
			if i+1 >= len(arguments) {
				return fmt.Errorf("flag needs an argument: %s", arg)
			}
			i++
			if err := flag.Value.Set(arguments[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name)}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information.")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "Usage: %s %s\nRun '%s --help' for the full option list.\n", a.Name, a.Synopsis, a.Name)
		return err
	}
	if help {
		a.writeHelp(os.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) writeHelp(w *os.File) {
	width := terminalWidth()
	var sb strings.Builder

	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	if a.Description != "" {
		sb.WriteString("\n")
		for _, line := range wrapText(a.Description, width-4) {
			fmt.Fprintf(&sb, "    %s\n", line)
		}
	}

	var options []*Flag
	left := 0
	for _, flag := range a.FlagSet.order {
		if a.FlagSet.isGroupFlag(flag.Name) {
			continue
		}
		options = append(options, flag)
		if n := len(flagLabel(flag)); n > left {
			left = n
		}
	}
	for _, g := range a.FlagSet.groups {
		for _, e := range g.Entries {
			if n := len(g.Prefix + "no-" + e.Name); n > left {
				left = n
			}
		}
	}

	sort.Slice(options, func(i, j int) bool { return options[i].Name < options[j].Name })
	sb.WriteString("\nOptions\n")
	for _, flag := range options {
		writeEntry(&sb, flagLabel(flag), flag.Usage, defaultNote(flag), left, width)
	}

	for _, g := range a.FlagSet.groups {
		fmt.Fprintf(&sb, "\n%s\n", g.Title)
		writeEntry(&sb, fmt.Sprintf("-%s<%s>", g.Prefix, g.Kind), "Enable a specific "+g.Kind+".", "", left, width)
		writeEntry(&sb, fmt.Sprintf("-%sno-<%s>", g.Prefix, g.Kind), "Disable a specific "+g.Kind+".", "", left, width)
		entries := make([]FlagGroupEntry, len(g.Entries))
		copy(entries, g.Entries)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			state := "|-|"
			if e.Enabled != nil && *e.Enabled {
				state = "|x|"
			}
			writeEntry(&sb, e.Name, e.Usage, state, left, width)
		}
	}

	if a.Repository != "" {
		fmt.Fprintf(&sb, "\nFor more details refer to %s\n", a.Repository)
	}
	fmt.Fprint(w, sb.String())
}

func flagLabel(flag *Flag) string {
	var sb strings.Builder
	if flag.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", flag.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", flag.Name)
	if flag.ArgName != "" {
		fmt.Fprintf(&sb, " <%s>", flag.ArgName)
	}
	return sb.String()
}

func defaultNote(flag *Flag) string {
	if flag.DefValue == "" || flag.DefValue == "false" {
		return ""
	}
	if _, isBool := flag.Value.(*boolValue); isBool {
		return ""
	}
	return "|" + flag.DefValue + "|"
}

func writeEntry(sb *strings.Builder, label, usage, note string, left, width int) {
	avail := width - left - 7 - len(note)
	if avail < 10 {
		avail = 10
	}
	lines := wrapText(usage, avail)
	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	if note != "" {
		fmt.Fprintf(sb, "    %-*s %-*s %s\n", left, label, avail, first, note)
	} else {
		fmt.Fprintf(sb, "    %-*s %s\n", left, label, first)
	}
	for _, line := range lines[1:] {
		fmt.Fprintf(sb, "    %-*s %s\n", left, "", line)
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 20 {
		return 80
	}
	return width
}

func wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{text}
	}
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > maxWidth {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
