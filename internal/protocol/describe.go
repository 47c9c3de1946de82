package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// Describe renders a human-readable, multi-line summary of a resolved
// Spec: its framing constants, every Command Definition, and every
// Response Definition with its item layout in declaration order. It is
// a diagnostic aid for verifying a Packed protocol description
// unpacked the way its author intended, not something the Session or
// Decoder depend on.
func Describe(spec *Spec) string {
	var b strings.Builder

	fmt.Fprintf(&b, "protocol %q\n", spec.Name)
	fmt.Fprintf(&b, "  service:        %s\n", spec.ServiceUUID)
	fmt.Fprintf(&b, "  characteristic: %s\n", spec.CharacteristicUUID)
	fmt.Fprintf(&b, "  segment header: %s\n", hexBytes(spec.SegmentHeader))
	fmt.Fprintf(&b, "  command header: %s\n", hexBytes(spec.CommandHeader))
	fmt.Fprintf(&b, "  command length: %d\n", spec.CommandLength)
	fmt.Fprintf(&b, "  inactivity timeout:      %s\n", spec.InactivityTimeout)
	fmt.Fprintf(&b, "  connect-previous timeout: %s\n", spec.ConnectPreviousTimeout)

	b.WriteString("  commands:\n")
	for _, name := range sortedCommandNames(spec) {
		cmd := spec.Commands[name]
		fmt.Fprintf(&b, "    %-20s code=%s timeout=%s postSendWait=%s\n",
			cmd.Name, hexBytes(cmd.Code), cmd.Timeout, cmd.PostSendWait)
	}

	b.WriteString("  responses:\n")
	for _, kind := range sortedResponseKinds(spec) {
		resp := spec.Responses[kind]
		fmt.Fprintf(&b, "    %-20s signature=%s length=%d\n", resp.Kind, hexBytes(resp.Signature), resp.Length)
		for _, item := range resp.Items {
			fmt.Fprintf(&b, "      [%3d:%3d] %-20s %s\n", item.Offset, item.Offset+item.ByteLength, item.Key, describeItem(item))
		}
	}

	return b.String()
}

func describeItem(item ItemDescriptor) string {
	var s string
	switch item.Kind {
	case KindRaw:
		s = "raw"
	case KindText:
		s = fmt.Sprintf("text(%s)", describeTextEncoding(item.TextEncoding))
	case KindNumeric:
		s = fmt.Sprintf("numeric(%s, %s", item.NumberType, describeEndianness(item.Endianness))
		if item.Multiplier != 0 {
			s += fmt.Sprintf(", x%g", item.Multiplier)
		}
		if item.Precision != nil {
			s += fmt.Sprintf(", precision=%d", *item.Precision)
		}
		s += ")"
	case KindBoolean:
		s = "boolean"
	default:
		s = "unknown"
	}
	if item.Repeatable {
		s += " []"
	}
	return s
}

func describeTextEncoding(enc TextEncoding) string {
	switch enc {
	case HexEncoding:
		return "hex"
	case UTF8Encoding:
		return "utf8"
	case ASCIIEncoding:
		return "ascii"
	default:
		return "unknown"
	}
}

func describeEndianness(end Endianness) string {
	if end == BigEndian {
		return "big"
	}
	return "little"
}

func sortedCommandNames(spec *Spec) []CommandName {
	names := make([]CommandName, 0, len(spec.Commands))
	for name := range spec.Commands {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func sortedResponseKinds(spec *Spec) []ResponseKind {
	kinds := make([]ResponseKind, 0, len(spec.Responses))
	for kind := range spec.Responses {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
