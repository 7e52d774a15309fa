package varlinkdef

import (
	"fmt"
	"strings"
)

// FormatOneLine renders iface as a single-line-per-member source text,
// the compact form used for diffing and for embedding in generated code
// comments.
func FormatOneLine(iface *Interface) string {
	var sb strings.Builder
	writeDoc(&sb, iface.Doc, "")
	sb.WriteString("interface ")
	sb.WriteString(iface.Name)
	sb.WriteByte('\n')
	for _, td := range iface.Typedefs {
		sb.WriteByte('\n')
		writeDoc(&sb, td.Doc, "")
		sb.WriteString(typedefOneLine(td))
		sb.WriteByte('\n')
	}
	for _, m := range iface.Methods {
		sb.WriteByte('\n')
		writeDoc(&sb, m.Doc, "")
		sb.WriteString(methodOneLine(m))
		sb.WriteByte('\n')
	}
	for _, e := range iface.Errors {
		sb.WriteByte('\n')
		writeDoc(&sb, e.Doc, "")
		sb.WriteString(errorOneLine(e))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatMultiLine renders iface with each member wrapped to maxWidth
// columns, using indent as the base indentation for struct/enum bodies.
// Members that fit within maxWidth on one line are left inline; the
// four-way method break decision is applied per member.
func FormatMultiLine(iface *Interface, indent, maxWidth int) string {
	var sb strings.Builder
	writeDoc(&sb, iface.Doc, "")
	sb.WriteString("interface ")
	sb.WriteString(iface.Name)
	sb.WriteByte('\n')
	for _, td := range iface.Typedefs {
		sb.WriteByte('\n')
		writeDoc(&sb, td.Doc, "")
		sb.WriteString(typedefMultiLine(td, indent, maxWidth))
		sb.WriteByte('\n')
	}
	for _, m := range iface.Methods {
		sb.WriteByte('\n')
		writeDoc(&sb, m.Doc, "")
		sb.WriteString(methodMultiLine(m, indent, maxWidth))
		sb.WriteByte('\n')
	}
	for _, e := range iface.Errors {
		sb.WriteByte('\n')
		writeDoc(&sb, e.Doc, "")
		sb.WriteString(errorMultiLine(e, indent, maxWidth))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func writeDoc(sb *strings.Builder, doc, indent string) {
	if doc == "" {
		return
	}
	for _, line := range strings.Split(doc, "\n") {
		sb.WriteString(indent)
		sb.WriteByte('#')
		if line != "" {
			sb.WriteByte(' ')
			sb.WriteString(line)
		}
		sb.WriteByte('\n')
	}
}

func typedefOneLine(td *Typedef) string {
	switch td.Kind {
	case KindEnum:
		return fmt.Sprintf("type %s %s", td.Name, enumOneLine(td.Enum))
	default:
		return fmt.Sprintf("type %s %s", td.Name, structOneLine(td.Struct))
	}
}

func methodOneLine(m *Method) string {
	return fmt.Sprintf("method %s%s -> %s", m.Name, structOneLine(m.In), structOneLine(m.Out))
}

func errorOneLine(e *VError) string {
	return fmt.Sprintf("error %s %s", e.Name, structOneLine(e.Parm))
}

func structOneLine(st VStruct) string {
	parts := make([]string, len(st))
	for i, arg := range st {
		parts[i] = arg.Name + ": " + typeExtOneLine(arg.Type)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func enumOneLine(en VEnum) string {
	return "(" + strings.Join(en, ", ") + ")"
}

func typeExtOneLine(t VTypeExt) string {
	var prefix string
	if t.Optional {
		prefix = "?"
	}
	switch t.Modifier {
	case ModArray:
		return prefix + "[]" + typeExtOneLine(*t.Inner)
	case ModDict:
		return prefix + "[string]" + typeExtOneLine(*t.Inner)
	default:
		return prefix + vtypeOneLine(t.Base)
	}
}

func vtypeOneLine(vt VType) string {
	switch vt.Kind {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindName:
		return vt.Name
	case KindStruct:
		return structOneLine(vt.Struct)
	case KindEnum:
		return enumOneLine(vt.Enum)
	default:
		return "?"
	}
}

// typedefMultiLine wraps the typedef body if it overflows maxWidth.
func typedefMultiLine(td *Typedef, indent, maxWidth int) string {
	oneLine := typedefOneLine(td)
	if len(oneLine) <= maxWidth {
		return oneLine
	}
	switch td.Kind {
	case KindEnum:
		return fmt.Sprintf("type %s %s", td.Name, enumMultiLine(td.Enum, indent))
	default:
		return fmt.Sprintf("type %s %s", td.Name, structMultiLine(td.Struct, indent, maxWidth))
	}
}

func errorMultiLine(e *VError, indent, maxWidth int) string {
	oneLine := errorOneLine(e)
	if len(oneLine) <= maxWidth {
		return oneLine
	}
	return fmt.Sprintf("error %s %s", e.Name, structMultiLine(e.Parm, indent, maxWidth))
}

// methodMultiLine applies the four-way break decision: prefer inlining
// both sides, then breaking only the output struct, then only the input
// struct, and only break both as a last resort.
func methodMultiLine(m *Method, indent, maxWidth int) string {
	head := fmt.Sprintf("method %s%s -> ", m.Name, structOneLine(m.In))
	fullyInline := head + structOneLine(m.Out)
	if len(fullyInline) <= maxWidth {
		return fullyInline
	}

	outBroken := head + structMultiLine(m.Out, indent, maxWidth)
	if fitsEveryLine(outBroken, maxWidth) {
		return outBroken
	}

	inBroken := fmt.Sprintf("method %s%s -> %s", m.Name, structMultiLine(m.In, indent, maxWidth), structOneLine(m.Out))
	if fitsEveryLine(inBroken, maxWidth) {
		return inBroken
	}

	return fmt.Sprintf("method %s%s -> %s", m.Name, structMultiLine(m.In, indent, maxWidth), structMultiLine(m.Out, indent, maxWidth))
}

func fitsEveryLine(s string, maxWidth int) bool {
	for _, line := range strings.Split(s, "\n") {
		if len(line) > maxWidth {
			return false
		}
	}
	return true
}

func structMultiLine(st VStruct, indent, maxWidth int) string {
	if len(st) == 0 {
		return "()"
	}
	pad := strings.Repeat(" ", indent+2)
	var sb strings.Builder
	sb.WriteString("(\n")
	for i, arg := range st {
		sb.WriteString(pad)
		sb.WriteString(arg.Name)
		sb.WriteString(": ")
		sb.WriteString(typeExtMultiLine(arg.Type, indent+2, maxWidth))
		if i < len(st)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Repeat(" ", indent))
	sb.WriteByte(')')
	return sb.String()
}

func enumMultiLine(en VEnum, indent int) string {
	if len(en) == 0 {
		return "()"
	}
	pad := strings.Repeat(" ", indent+2)
	var sb strings.Builder
	sb.WriteString("(\n")
	for i, id := range en {
		sb.WriteString(pad)
		sb.WriteString(id)
		if i < len(en)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Repeat(" ", indent))
	sb.WriteByte(')')
	return sb.String()
}

// typeExtMultiLine breaks an inline struct/enum nested directly in a field
// type; primitive and named types never need wrapping.
func typeExtMultiLine(t VTypeExt, indent, maxWidth int) string {
	oneLine := typeExtOneLine(t)
	if len(oneLine) <= maxWidth-indent {
		return oneLine
	}
	var prefix string
	if t.Optional {
		prefix = "?"
	}
	switch t.Modifier {
	case ModArray:
		return prefix + "[]" + typeExtMultiLine(*t.Inner, indent, maxWidth)
	case ModDict:
		return prefix + "[string]" + typeExtMultiLine(*t.Inner, indent, maxWidth)
	default:
		switch t.Base.Kind {
		case KindStruct:
			return prefix + structMultiLine(t.Base.Struct, indent, maxWidth)
		case KindEnum:
			return prefix + enumMultiLine(t.Base.Enum, indent)
		default:
			return oneLine
		}
	}
}

// Color codes used by FormatOneLineColor/FormatMultiLineColor, matching
// the palette: keywords in purple, type names in cyan, method names in
// green, doc comments in blue.
const (
	colorReset  = "\x1b[0m"
	colorPurple = "\x1b[35m"
	colorCyan   = "\x1b[36m"
	colorGreen  = "\x1b[32m"
	colorBlue   = "\x1b[34m"
)

func colorize(code, s string) string {
	return code + s + colorReset
}

// FormatOneLineColor is FormatOneLine with ANSI color codes applied to
// keywords, type names, method names, and doc comments. Layout is
// unchanged from the uncolored form.
func FormatOneLineColor(iface *Interface) string {
	return colorizeMembers(FormatOneLine(iface))
}

// FormatMultiLineColor is FormatMultiLine with the same coloring applied.
func FormatMultiLineColor(iface *Interface, indent, maxWidth int) string {
	return colorizeMembers(FormatMultiLine(iface, indent, maxWidth))
}

// colorizeMembers applies line-level coloring as a post-processing pass
// over already-rendered text, keeping the layout logic in one place.
func colorizeMembers(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		leadSpace := line[:len(line)-len(trimmed)]
		switch {
		case strings.HasPrefix(trimmed, "#"):
			lines[i] = leadSpace + colorize(colorBlue, trimmed)
		case strings.HasPrefix(trimmed, "interface "):
			lines[i] = leadSpace + colorize(colorPurple, "interface") + " " + colorize(colorCyan, strings.TrimPrefix(trimmed, "interface "))
		case strings.HasPrefix(trimmed, "type "):
			rest := strings.TrimPrefix(trimmed, "type ")
			name, body := splitFirstWord(rest)
			lines[i] = leadSpace + colorize(colorPurple, "type") + " " + colorize(colorCyan, name) + " " + body
		case strings.HasPrefix(trimmed, "method "):
			rest := strings.TrimPrefix(trimmed, "method ")
			name, body := splitFirstWord(rest)
			body = strings.Replace(body, "->", colorize(colorPurple, "->"), 1)
			lines[i] = leadSpace + colorize(colorPurple, "method") + " " + colorize(colorGreen, name) + body
		case strings.HasPrefix(trimmed, "error "):
			rest := strings.TrimPrefix(trimmed, "error ")
			name, body := splitFirstWord(rest)
			lines[i] = leadSpace + colorize(colorPurple, "error") + " " + colorize(colorCyan, name) + " " + body
		}
	}
	return strings.Join(lines, "\n")
}

func splitFirstWord(s string) (word, rest string) {
	idx := strings.IndexAny(s, "( ")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx:]
}
