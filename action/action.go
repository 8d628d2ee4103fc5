// Package action implements the textual key/action/sequence language
// scripts use to describe triggers and targets: "^!a", "{shift down}",
// "hello {enter}".
package action

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/miken90/gonode/keys"
	"github.com/miken90/gonode/xerrors"
)

// Kind distinguishes the three shapes a parsed action can take.
type Kind int

const (
	KindClick Kind = iota
	KindKeyAction
	KindAxis
)

// Action is the parser's output: a tagged variant of
// {click, key-action, axis-action}.
type Action struct {
	Kind Kind
	Key  keys.Key
	// Value is the key-event value (keys.Down/Up/Repeat) for KindKeyAction,
	// unused for KindClick (a click always expands to Down then Up).
	Value int32
	Mods  keys.ModMask
	// Axis carries the signed delta for KindAxis.
	Axis int32
}

var modifierChars = map[rune]keys.ModMask{
	'^': keys.ModCtrl,
	'!': keys.ModAlt,
	'+': keys.ModShift,
	'#': keys.ModMeta,
}

var stateNames = map[string]int32{
	"up":     keys.Up,
	"down":   keys.Down,
	"repeat": keys.Repeat,
}

// parser walks a rune slice left to right, tracking a column for error
// reporting.
type parser struct {
	runes []rune
	pos   int
}

func newParser(s string) *parser {
	return &parser{runes: []rune(s)}
}

func (p *parser) eof() bool { return p.pos >= len(p.runes) }

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}

	return p.runes[p.pos]
}

func (p *parser) next() rune {
	r := p.peek()
	p.pos++

	return r
}

// ParseKey parses a single key expression: an optional run of modifier
// prefix characters (^!+# in any order, no repeats) followed by either
// a bare key name/character, or a braced action/axis form.
func ParseKey(s string) (Action, error) {
	p := newParser(s)

	act, err := p.parseOne()
	if err != nil {
		return Action{}, err
	}

	if !p.eof() {
		return Action{}, xerrors.Parse("KeyParse", p.pos, fmt.Errorf("unexpected trailing input %q", string(p.runes[p.pos:])))
	}

	return act, nil
}

func (p *parser) parseOne() (Action, error) {
	var mods keys.ModMask

	seen := map[rune]bool{}

	for {
		r := p.peek()

		mask, ok := modifierChars[r]
		if !ok {
			break
		}

		if seen[r] {
			return Action{}, xerrors.Parse("KeyParse", p.pos, fmt.Errorf("repeated modifier %q", r))
		}

		seen[r] = true
		mods |= mask
		p.next()
	}

	if p.eof() {
		return Action{}, xerrors.Parse("KeyParse", p.pos, fmt.Errorf("expected a key, got end of input"))
	}

	if p.peek() == '{' {
		return p.parseBraced(mods)
	}

	return p.parseBareKey(mods)
}

func (p *parser) parseBareKey(mods keys.ModMask) (Action, error) {
	start := p.pos

	for !p.eof() && p.peek() != ' ' {
		p.next()
	}

	name := string(p.runes[start:p.pos])
	if name == "" {
		return Action{}, xerrors.Parse("KeyParse", start, fmt.Errorf("empty key name"))
	}

	k, implicitShift, err := resolveKeyToken(name)
	if err != nil {
		return Action{}, xerrors.Parse("KeyParse", start, err)
	}

	if implicitShift {
		mods |= keys.ModShift
	}

	return Action{Kind: KindClick, Key: k, Mods: mods}, nil
}

// resolveKeyToken turns a bare token into a Key, resolving single UTF
// characters (with implicit shift for uppercase ASCII letters) as well
// as canonical KEY_*/BTN_* names.
func resolveKeyToken(name string) (keys.Key, bool, error) {
	runes := []rune(name)
	if len(runes) == 1 && unicode.IsUpper(runes[0]) {
		if k, ok := keys.Lookup(string(runes[0])); ok {
			return k, true, nil
		}
	}

	if k, ok := keys.Lookup(name); ok {
		return k, false, nil
	}

	if k, ok := modifierAliases[strings.ToLower(name)]; ok {
		return k, false, nil
	}

	return keys.Key{}, false, fmt.Errorf("unknown key %q", name)
}

// modifierAliases lets action bodies name a modifier generically
// ("{shift down}"), resolving to its left-hand key.
var modifierAliases = map[string]keys.Key{
	"ctrl":  keys.NameToKey["KEY_LEFTCTRL"],
	"shift": keys.NameToKey["KEY_LEFTSHIFT"],
	"alt":   keys.NameToKey["KEY_LEFTALT"],
	"meta":  keys.NameToKey["KEY_LEFTMETA"],
}

func (p *parser) parseBraced(mods keys.ModMask) (Action, error) {
	open := p.pos
	p.next() // consume '{'

	start := p.pos
	for !p.eof() && p.peek() != '}' {
		p.next()
	}

	if p.eof() {
		return Action{}, xerrors.Parse("KeyParse", open, fmt.Errorf("unterminated action, expected '}'"))
	}

	body := string(p.runes[start:p.pos])
	p.next() // consume '}'

	return parseActionBody(body, mods, start)
}

func parseActionBody(body string, mods keys.ModMask, col int) (Action, error) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return Action{}, xerrors.Parse("KeyParse", col, fmt.Errorf("empty action body"))
	}

	head := strings.ToLower(fields[0])

	switch head {
	case "relative", "absolute":
		return parseAxisBody(head, fields, col)
	}

	switch len(fields) {
	case 1:
		k, implicit, err := resolveKeyToken(fields[0])
		if err != nil {
			return Action{}, xerrors.Parse("KeyParse", col, err)
		}

		if implicit {
			mods |= keys.ModShift
		}

		return Action{Kind: KindClick, Key: k, Mods: mods}, nil
	case 2:
		k, implicit, err := resolveKeyToken(fields[0])
		if err != nil {
			return Action{}, xerrors.Parse("KeyParse", col, err)
		}

		if implicit {
			mods |= keys.ModShift
		}

		value, ok := stateNames[strings.ToLower(fields[1])]
		if !ok {
			return Action{}, xerrors.Parse("KeyParse", col, fmt.Errorf("expected one of up/down/repeat, got %q", fields[1]))
		}

		return Action{Kind: KindKeyAction, Key: k, Value: value, Mods: mods}, nil
	default:
		return Action{}, xerrors.Parse("KeyParse", col, fmt.Errorf("too many tokens in action %q", body))
	}
}

func parseAxisBody(head string, fields []string, col int) (Action, error) {
	if len(fields) != 3 {
		return Action{}, xerrors.Parse("KeyParse", col, fmt.Errorf("%s action wants \"%s CODE N\", got %q", head, head, strings.Join(fields, " ")))
	}

	k, _, err := resolveKeyToken(fields[1])
	if err != nil {
		return Action{}, xerrors.Parse("KeyParse", col, err)
	}

	evType := uint16(keys.EvRel)
	if head == "absolute" {
		evType = keys.EvAbs
	}

	k.Type = evType

	var delta int
	if _, err := fmt.Sscanf(fields[2], "%d", &delta); err != nil {
		return Action{}, xerrors.Parse("KeyParse", col, fmt.Errorf("invalid axis delta %q", fields[2]))
	}

	return Action{Kind: KindAxis, Key: k, Axis: int32(delta)}, nil
}

// ParseSequence parses the double-quote-free contents of a sequence
// string: a run of bare characters and braced actions, e.g.
// "{shift down}Hello{shift up}". An uppercase ASCII letter appearing as
// a bare character implies an implicit shift modifier for that single
// click, matching ParseKey's bare-key behavior.
func ParseSequence(s string) ([]Action, error) {
	p := newParser(s)

	var out []Action

	for !p.eof() {
		if p.peek() == '{' {
			act, err := p.parseBraced(0)
			if err != nil {
				return nil, requalify(err)
			}

			out = append(out, act)

			continue
		}

		r := p.next()

		if r == ' ' {
			out = append(out, Action{Kind: KindClick, Key: keys.NameToKey["KEY_SPACE"]})

			continue
		}

		var mods keys.ModMask

		if unicode.IsUpper(r) {
			mods |= keys.ModShift
			r = unicode.ToLower(r)
		}

		k, ok := keys.Lookup(strings.ToUpper(string(r)))
		if !ok {
			return nil, xerrors.Parse("KeySequenceParse", p.pos-1, fmt.Errorf("no key for character %q", r))
		}

		out = append(out, Action{Kind: KindClick, Key: k, Mods: mods})
	}

	return out, nil
}

// requalify turns a ParseError produced by the shared brace-parsing
// helper into a KeySequenceParse, keeping the column the inner parser
// already computed.
func requalify(err error) error {
	xe, ok := err.(*xerrors.Error)
	if !ok {
		return err
	}

	return xerrors.Parse("KeySequenceParse", xe.Column, xe.Err)
}
