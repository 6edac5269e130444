package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/drpcorg/rtcdoc"
	"github.com/drpcorg/rtcdoc/config"
	"github.com/drpcorg/rtcdoc/protocol"
	"github.com/drpcorg/rtcdoc/rdx"
	"github.com/drpcorg/rtcdoc/rooms"
	"github.com/drpcorg/rtcdoc/store"
	"github.com/drpcorg/rtcdoc/utils"
	"github.com/ergochat/readline"
	"github.com/oklog/ulid/v2"
)

// REPL edits the documents of a hub, one room at a time.
type REPL struct {
	hub   *rooms.Hub
	store *store.Store
	room  *rooms.Room
	log   utils.Logger
	rl    *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("open"),
	readline.PcItem("rooms"),
	readline.PcItem("drop"),

	readline.PcItem("show"),
	readline.PcItem("get"),
	readline.PcItem("set"),
	readline.PcItem("delete"),
	readline.PcItem("splice"),
	readline.PcItem("incr"),

	readline.PcItem("changes"),
	readline.PcItem("vv"),
	readline.PcItem("dump"),
	readline.PcItem("export"),
	readline.PcItem("import"),
	readline.PcItem("history"),
	readline.PcItem("version"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

var (
	ErrNoRoom = errors.New("no room open, use: open <name>")

	HelpOpen    = errors.New("open <room>")
	HelpDrop    = errors.New("drop <room>")
	HelpGet     = errors.New("get <key>")
	HelpSet     = errors.New("set <key> <json or text>")
	HelpDelete  = errors.New("delete <key>")
	HelpSplice  = errors.New("splice <key> <pos> <del> [text]")
	HelpIncr    = errors.New("incr <key> <delta>")
	HelpExport  = errors.New("export <file>")
	HelpImport  = errors.New("import <file>")
	HelpVersion = errors.New("version <id>")
	HelpChanges = errors.New("changes [vv]")
)

const helpText = `open <room>                 open or create a room
rooms                       list stored rooms
drop <room>                 delete a room and its history
show                        print the document as JSON
get <key>                   print one field
set <key> <json or text>    set a field
delete <key>                delete a field
splice <key> <pos> <del> [text]  edit a text field
incr <key> <delta>          add to a counter field
changes [vv]                list changes, all or unseen by vv
vv                          print the version vector
dump                        print the change log
export <file>               write all changes to a file
import <file>               merge changes from a file
history                     list stored versions
version <id>                print a stored version
exit                        leave`

func NewREPL(hub *rooms.Hub, st *store.Store, log utils.Logger) *REPL {
	return &REPL{hub: hub, store: st, log: log}
}

func (repl *REPL) Open(cfg config.REPLConfig) (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

// Run reads commands until exit or EOF.
func (repl *REPL) Run() error {
	for {
		line, err := repl.rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		out, err := repl.Execute(line)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
			continue
		}
		if out != "" {
			_, _ = fmt.Fprintln(os.Stdout, out)
		}
	}
}

func cutWord(line string) (word, rest string) {
	line = strings.TrimSpace(line)
	if i := strings.IndexAny(line, " \t"); i > 0 {
		return line[:i], strings.TrimSpace(line[i:])
	}
	return line, ""
}

// Execute runs one command line and returns what it prints.
func (repl *REPL) Execute(line string) (out string, err error) {
	cmd, arg := cutWord(line)
	switch cmd {
	case "":
		return "", nil
	case "help", "?":
		return helpText, nil
	case "exit", "quit":
		return "", io.EOF
	// ----- rooms -----
	case "open":
		return repl.CommandOpen(arg)
	case "rooms":
		return repl.CommandRooms(arg)
	case "drop":
		return repl.CommandDrop(arg)
	}
	if repl.room == nil {
		return "", ErrNoRoom
	}
	switch cmd {
	// ----- fields -----
	case "show", "cat":
		return repl.CommandShow(arg)
	case "get":
		return repl.CommandGet(arg)
	case "set":
		return repl.CommandSet(arg)
	case "delete", "del":
		return repl.CommandDelete(arg)
	case "splice":
		return repl.CommandSplice(arg)
	case "incr":
		return repl.CommandIncr(arg)
	// ----- changes -----
	case "changes":
		return repl.CommandChanges(arg)
	case "vv":
		return repl.CommandVV(arg)
	case "dump":
		return repl.CommandDump(arg)
	case "export":
		return repl.CommandExport(arg)
	case "import":
		return repl.CommandImport(arg)
	case "history":
		return repl.CommandHistory(arg)
	case "version":
		return repl.CommandVersion(arg)
	}
	return "", fmt.Errorf("command unknown: %s", cmd)
}

func (repl *REPL) CommandOpen(arg string) (string, error) {
	if arg == "" {
		return "", HelpOpen
	}
	room, err := repl.hub.Room(arg)
	if err != nil {
		return "", err
	}
	repl.room = room
	if repl.rl != nil {
		repl.rl.SetPrompt(arg + "> ")
	}
	return fmt.Sprintf("room %s open", arg), nil
}

func (repl *REPL) CommandRooms(string) (string, error) {
	names, err := repl.store.Names()
	if err != nil {
		return "", err
	}
	return strings.Join(names, "\n"), nil
}

func (repl *REPL) CommandDrop(arg string) (string, error) {
	if arg == "" {
		return "", HelpDrop
	}
	if err := repl.hub.Drop(arg); err != nil {
		return "", err
	}
	if repl.room != nil && repl.room.Name() == arg {
		repl.room = nil
	}
	return fmt.Sprintf("room %s dropped", arg), nil
}

func (repl *REPL) document() (*rtcdoc.Document, error) {
	return repl.room.Document()
}

func (repl *REPL) CommandShow(string) (string, error) {
	doc, err := repl.document()
	if err != nil {
		return "", err
	}
	m, err := doc.ToMap()
	if err != nil {
		return "", err
	}
	return renderValue(m), nil
}

func (repl *REPL) CommandGet(arg string) (string, error) {
	if arg == "" {
		return "", HelpGet
	}
	doc, err := repl.document()
	if err != nil {
		return "", err
	}
	x, err := doc.Get(arg)
	if err != nil {
		return "", err
	}
	return renderValue(x), nil
}

func (repl *REPL) CommandSet(arg string) (string, error) {
	key, raw := cutWord(arg)
	if key == "" || raw == "" {
		return "", HelpSet
	}
	x, err := parseValue(raw)
	if err != nil {
		return "", err
	}
	return "", repl.room.Update(func(doc *rtcdoc.Document) error {
		return doc.Set(key, x)
	})
}

func (repl *REPL) CommandDelete(arg string) (string, error) {
	if arg == "" {
		return "", HelpDelete
	}
	return "", repl.room.Update(func(doc *rtcdoc.Document) error {
		return doc.Delete(arg)
	})
}

func (repl *REPL) CommandSplice(arg string) (string, error) {
	key, rest := cutWord(arg)
	posStr, rest := cutWord(rest)
	delStr, text := cutWord(rest)
	pos, err1 := strconv.Atoi(posStr)
	del, err2 := strconv.Atoi(delStr)
	if key == "" || err1 != nil || err2 != nil {
		return "", HelpSplice
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	return "", repl.room.Update(func(doc *rtcdoc.Document) error {
		return doc.SpliceText(key, pos, del, text)
	})
}

func (repl *REPL) CommandIncr(arg string) (string, error) {
	key, deltaStr := cutWord(arg)
	delta, err := strconv.ParseInt(deltaStr, 10, 64)
	if key == "" || err != nil {
		return "", HelpIncr
	}
	return "", repl.room.Update(func(doc *rtcdoc.Document) error {
		return doc.Increment(key, delta)
	})
}

func (repl *REPL) CommandChanges(arg string) (string, error) {
	doc, err := repl.document()
	if err != nil {
		return "", err
	}
	var vv rdx.VV
	if arg != "" {
		vv = rdx.VVFromString(arg)
		if len(vv) == 0 {
			return "", HelpChanges
		}
	}
	changes, err := doc.ChangesSince(vv)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d changes, %d bytes", len(changes), protocol.Records(changes).TotalLen()), nil
}

func (repl *REPL) CommandVV(string) (string, error) {
	doc, err := repl.document()
	if err != nil {
		return "", err
	}
	vv, err := doc.VersionVector()
	if err != nil {
		return "", err
	}
	return vv.String(), nil
}

func (repl *REPL) CommandDump(string) (string, error) {
	doc, err := repl.document()
	if err != nil {
		return "", err
	}
	dump, err := doc.Dump()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(dump, "\n"), nil
}

func (repl *REPL) CommandExport(arg string) (string, error) {
	if arg == "" {
		return "", HelpExport
	}
	changes, err := repl.room.Changes()
	if err != nil {
		return "", err
	}
	data := protocol.Records(changes).Join()
	if err = os.WriteFile(arg, data, 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d changes written to %s", len(changes), arg), nil
}

func (repl *REPL) CommandImport(arg string) (string, error) {
	if arg == "" {
		return "", HelpImport
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	changes, err := protocol.Split(data)
	if err != nil {
		return "", err
	}
	if err = repl.room.Merge(changes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d changes merged", len(changes)), nil
}

func (repl *REPL) CommandHistory(string) (string, error) {
	versions, err := repl.store.History(repl.room.Name())
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(versions))
	for _, v := range versions {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%d bytes", v.ID, v.Time.Format("2006-01-02 15:04:05.000"), v.Size))
	}
	return strings.Join(lines, "\n"), nil
}

// CommandVersion prints a stored version of the room document.
func (repl *REPL) CommandVersion(arg string) (string, error) {
	id, err := ulid.ParseStrict(arg)
	if err != nil {
		return "", HelpVersion
	}
	snapshot, err := repl.store.GetVersion(repl.room.Name(), id)
	if err != nil {
		return "", err
	}
	old, err := rtcdoc.Load(snapshot, rtcdoc.Options{Logger: repl.log})
	if err != nil {
		return "", err
	}
	m, err := old.ToMap()
	if err != nil {
		return "", err
	}
	return renderValue(m), nil
}
