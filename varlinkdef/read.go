package varlinkdef

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Parse reads a Varlink interface description from r and returns its AST.
//
// Parse captures doc comments (consecutive "#"-prefixed lines immediately
// preceding a member) and rejects duplicate type/method/error names within
// the interface, collecting every duplicate before returning a combined
// error rather than stopping at the first one.
func Parse(r io.Reader) (*Interface, error) {
	dec := &decoder{br: bufio.NewReader(r)}
	return dec.readInterface()
}

type decoder struct {
	br      *bufio.Reader
	pending []string // doc comment lines collected since the last token
}

func (dec *decoder) skipWhitespace() error {
	for {
		ch, err := dec.br.ReadByte()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		switch ch {
		case ' ', '\t', '\r', '\n':
			// skip
		case '#':
			line, err := dec.br.ReadString('\n')
			if err != nil && err != io.EOF {
				return err
			}
			dec.pending = append(dec.pending, strings.TrimPrefix(strings.TrimRight(line, "\r\n"), " "))
		default:
			dec.br.UnreadByte()
			return nil
		}
	}
}

// takeDoc returns the accumulated comment lines as a doc string and clears
// the buffer. Callers skip whitespace first, so that every comment line
// before the next keyword has been collected, then call takeDoc before
// reading that keyword.
func (dec *decoder) takeDoc() string {
	doc := strings.Join(dec.pending, "\n")
	dec.pending = nil
	return doc
}

func (dec *decoder) readToken() (string, error) {
	if err := dec.skipWhitespace(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		ch, err := dec.br.ReadByte()
		if err == io.EOF && sb.Len() > 0 {
			return sb.String(), nil
		} else if err != nil {
			return "", err
		}
		switch ch {
		case '?', '(', ')', ',', ':':
			if sb.Len() > 0 {
				dec.br.UnreadByte()
				return sb.String(), nil
			}
			return string(ch), nil
		case ']', '>':
			sb.WriteByte(ch)
			return sb.String(), nil
		case ' ', '\t', '\r', '\n', '#':
			dec.br.UnreadByte()
			return sb.String(), nil
		default:
			sb.WriteByte(ch)
		}
	}
}

func (dec *decoder) expectToken(token string) error {
	got, err := dec.readToken()
	if err != nil {
		return fmt.Errorf("in %q: %w", token, err)
	} else if got != token {
		return fmt.Errorf("expected %q, got %q", token, got)
	}
	return nil
}

func (dec *decoder) readInterfaceName() (string, error) {
	name, err := dec.readToken()
	if err != nil {
		return "", fmt.Errorf("in interface name: %w", err)
	} else if !isInterfaceName(name) {
		return "", fmt.Errorf("invalid interface name %q", name)
	}
	return name, nil
}

func (dec *decoder) readName() (string, error) {
	name, err := dec.readToken()
	if err != nil {
		return "", fmt.Errorf("in name: %w", err)
	} else if !isName(name) {
		return "", fmt.Errorf("invalid name %q", name)
	}
	return name, nil
}

// readStructOrEnum reads a parenthesized member list and decides whether it
// is a struct (fields separated by ":") or an enum (bare identifiers) from
// the separator following the first name.
func (dec *decoder) readStructOrEnum() (*VStruct, *VEnum, error) {
	if err := dec.expectToken("("); err != nil {
		return nil, nil, err
	}

	var st VStruct
	var en VEnum
	decided := false

	for {
		token, err := dec.readToken()
		if err != nil {
			return nil, nil, fmt.Errorf("in struct or enum: %w", err)
		}
		if token == ")" && !decided {
			st = VStruct{}
			return &st, nil, nil
		} else if !isFieldName(token) {
			return nil, nil, fmt.Errorf("expected field name, got %q", token)
		}
		name := token

		sep, err := dec.readToken()
		if err != nil {
			return nil, nil, fmt.Errorf("in struct or enum: %w", err)
		}
		if !decided {
			switch sep {
			case ",", ")":
				en = VEnum{}
			case ":":
				st = VStruct{}
			default:
				return nil, nil, fmt.Errorf(`expected one of "," or ":", got %q`, sep)
			}
			decided = true
		} else if en != nil {
			if sep != "," && sep != ")" {
				return nil, nil, fmt.Errorf(`expected "," or ")", got %q`, sep)
			}
		} else if sep != ":" {
			return nil, nil, fmt.Errorf(`expected ":", got %q`, sep)
		}

		if en != nil {
			en = append(en, name)
			if sep == ")" {
				return nil, &en, nil
			}
			continue
		}

		typ, err := dec.readTypeExt()
		if err != nil {
			return nil, nil, fmt.Errorf("in struct field %q: %w", name, err)
		}
		st = append(st, Argument{Name: name, Type: *typ})

		sep, err = dec.readToken()
		if err != nil {
			return nil, nil, fmt.Errorf("in struct: %w", err)
		}
		switch sep {
		case ")":
			return &st, nil, nil
		case ",":
			// continue
		default:
			return nil, nil, fmt.Errorf(`expected "," or ")", got %q`, sep)
		}
	}
}

func (dec *decoder) readStruct() (VStruct, error) {
	st, en, err := dec.readStructOrEnum()
	if err != nil {
		return nil, err
	} else if en != nil {
		return nil, fmt.Errorf("expected struct, got enum")
	}
	return *st, nil
}

func (dec *decoder) readBaseType(token string) (*VType, error) {
	if token == "" {
		var err error
		token, err = dec.readToken()
		if err != nil {
			return nil, fmt.Errorf("in type: %w", err)
		}
	}

	if kind := parseBasicType(token); kind != 0 {
		return &VType{Kind: kind}, nil
	}

	if token == "(" {
		dec.br.UnreadByte()
		st, en, err := dec.readStructOrEnum()
		if err != nil {
			return nil, err
		}
		if en != nil {
			return &VType{Kind: KindEnum, Enum: *en}, nil
		}
		return &VType{Kind: KindStruct, Struct: *st}, nil
	}

	if isName(token) {
		return &VType{Kind: KindName, Name: token}, nil
	}

	return nil, fmt.Errorf("expected type, got %q", token)
}

// readTypeExt reads a full type expression: an optional leading "?" followed
// by zero or more "[]"/"[string]" wrappers around a base type.
//
// The grammar only allows "?" at the outermost position: "?[]T" and
// "?[string]T" are valid ("an optional array/dict of T"), but "[]?T" is
// rejected -- there is no such thing as an array of optional elements. This
// asymmetry is enforced here by only consulting the leading token for "?",
// never recursing into readTypeExt for the element type.
func (dec *decoder) readTypeExt() (*VTypeExt, error) {
	token, err := dec.readToken()
	if err != nil {
		return nil, fmt.Errorf("in type: %w", err)
	}

	optional := token == "?"
	if optional {
		token, err = dec.readToken()
		if err != nil {
			return nil, fmt.Errorf("in type: %w", err)
		}
		if token == "?" {
			return nil, fmt.Errorf("unexpected repeated \"?\"")
		}
	}

	var modifier Modifier
	switch token {
	case "[]":
		modifier = ModArray
	case "[string]":
		modifier = ModDict
	default:
		base, err := dec.readBaseType(token)
		if err != nil {
			return nil, err
		}
		return &VTypeExt{Optional: optional, Modifier: ModNone, Base: *base}, nil
	}

	inner, err := dec.readInnerTypeExt()
	if err != nil {
		return nil, err
	}
	return &VTypeExt{Optional: optional, Modifier: modifier, Inner: inner}, nil
}

// readInnerTypeExt reads the element type under an array/dict wrapper. It
// never accepts a leading "?": "[]?T" is a parse error by design.
func (dec *decoder) readInnerTypeExt() (*VTypeExt, error) {
	token, err := dec.readToken()
	if err != nil {
		return nil, fmt.Errorf("in element type: %w", err)
	}
	if token == "?" {
		return nil, fmt.Errorf("array/dict element type cannot be optional")
	}

	var modifier Modifier
	switch token {
	case "[]":
		modifier = ModArray
	case "[string]":
		modifier = ModDict
	default:
		base, err := dec.readBaseType(token)
		if err != nil {
			return nil, err
		}
		return &VTypeExt{Modifier: ModNone, Base: *base}, nil
	}

	inner, err := dec.readInnerTypeExt()
	if err != nil {
		return nil, err
	}
	return &VTypeExt{Modifier: modifier, Inner: inner}, nil
}

func (dec *decoder) readMember(iface *Interface) error {
	if err := dec.skipWhitespace(); err != nil {
		return err
	}
	doc := dec.takeDoc()

	keyword, err := dec.readToken()
	if err != nil {
		return err
	}

	switch keyword {
	case "type":
		name, err := dec.readName()
		if err != nil {
			return err
		}
		st, en, err := dec.readStructOrEnum()
		if err != nil {
			return err
		}
		td := &Typedef{Name: name, Doc: doc}
		if en != nil {
			td.Kind = KindEnum
			td.Enum = *en
		} else {
			td.Kind = KindStruct
			td.Struct = *st
		}
		iface.Typedefs = append(iface.Typedefs, td)
	case "method":
		name, err := dec.readName()
		if err != nil {
			return err
		}
		in, err := dec.readStruct()
		if err != nil {
			return err
		}
		if err := dec.expectToken("->"); err != nil {
			return err
		}
		out, err := dec.readStruct()
		if err != nil {
			return err
		}
		iface.Methods = append(iface.Methods, &Method{Name: name, Doc: doc, In: in, Out: out})
	case "error":
		name, err := dec.readName()
		if err != nil {
			return err
		}
		parm, err := dec.readStruct()
		if err != nil {
			return err
		}
		iface.Errors = append(iface.Errors, &VError{Name: name, Doc: doc, Parm: parm})
	default:
		return fmt.Errorf(`expected one of "type", "method", "error", got %q`, keyword)
	}

	return nil
}

func (dec *decoder) readInterface() (*Interface, error) {
	if err := dec.skipWhitespace(); err != nil {
		return nil, err
	}
	doc := dec.takeDoc()

	if err := dec.expectToken("interface"); err != nil {
		return nil, err
	}
	name, err := dec.readInterfaceName()
	if err != nil {
		return nil, err
	}

	iface := &Interface{Name: name, Doc: doc}
	for {
		if err := dec.readMember(iface); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
	}

	if err := checkDuplicates(iface); err != nil {
		return nil, err
	}
	return iface, nil
}

// checkDuplicates reports every duplicate typedef/method/error name in the
// interface as a single combined error, sorted and newline-joined, matching
// the diagnostic format the reference implementation produces.
func checkDuplicates(iface *Interface) error {
	var problems []string

	seenTypedefs := make(map[string]bool)
	for _, td := range iface.Typedefs {
		if seenTypedefs[td.Name] {
			problems = append(problems, fmt.Sprintf("Interface `%s`: multiple definitions of type `%s`!", iface.Name, td.Name))
		}
		seenTypedefs[td.Name] = true
	}

	seenMethods := make(map[string]bool)
	for _, m := range iface.Methods {
		if seenMethods[m.Name] {
			problems = append(problems, fmt.Sprintf("Interface `%s`: multiple definitions of type `%s`!", iface.Name, m.Name))
		}
		seenMethods[m.Name] = true
	}

	seenErrors := make(map[string]bool)
	for _, e := range iface.Errors {
		if seenErrors[e.Name] {
			problems = append(problems, fmt.Sprintf("Interface `%s`: multiple definitions of error `%s`!", iface.Name, e.Name))
		}
		seenErrors[e.Name] = true
	}

	if len(iface.Methods) == 0 {
		problems = append(problems, fmt.Sprintf("Interface `%s`: no method defined!", iface.Name))
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%s", strings.Join(problems, "\n"))
}

func parseBasicType(token string) Kind {
	switch token {
	case "bool":
		return KindBool
	case "int":
		return KindInt
	case "float":
		return KindFloat
	case "string":
		return KindString
	case "object":
		return KindObject
	default:
		return 0
	}
}

// isInterfaceName validates a reverse-domain interface name: a first label
// starting with a lowercase letter, followed by one or more "."-separated
// labels starting with a lowercase letter or digit, each label otherwise
// lowercase letters and digits with single, non-trailing hyphen runs
// (grammar's "no hyphen at begin and end").
func isInterfaceName(s string) bool {
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for i, label := range labels {
		first := isLowerAlphaNum
		if i == 0 {
			first = isLowerAlpha
		}
		if !isInterfaceLabel(label, first) {
			return false
		}
	}
	return true
}

func isInterfaceLabel(s string, firstCharOK func(byte) bool) bool {
	if len(s) == 0 || !firstCharOK(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != '-' {
			if !isLowerAlphaNum(s[i]) {
				return false
			}
			continue
		}
		j := i
		for j < len(s) && s[j] == '-' {
			j++
		}
		if j >= len(s) || !isLowerAlphaNum(s[j]) {
			return false
		}
		i = j
	}
	return true
}

func isLowerAlpha(ch byte) bool { return ch >= 'a' && ch <= 'z' }

func isLowerAlphaNum(ch byte) bool { return isLowerAlpha(ch) || (ch >= '0' && ch <= '9') }

func isName(s string) bool {
	return len(s) > 0 && s[0] >= 'A' && s[0] <= 'Z' && containsOnly(s[1:], isAlphaNum)
}

func isFieldName(s string) bool {
	return len(s) > 0 && isAlpha(s[0]) && containsOnly(s[1:], func(ch byte) bool {
		return isAlphaNum(ch) || ch == '_'
	})
}

func containsOnly(s string, f func(byte) bool) bool {
	for i := 0; i < len(s); i++ {
		if !f(s[i]) {
			return false
		}
	}
	return true
}

func isAlphaNum(ch byte) bool {
	return isAlpha(ch) || (ch >= '0' && ch <= '9')
}

func isAlpha(ch byte) bool {
	return (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}
