package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

func formatStatus(s statusView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(s)
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Address:\t%s\n", s.Address)
		fmt.Fprintf(w, "Instance ID:\t%s\n", s.InstanceID)
		fmt.Fprintf(w, "Online:\t%t\n", s.Online)
		fmt.Fprintf(w, "Is Root:\t%t\n", s.IsRoot)
		fmt.Fprintf(w, "Peers:\t%d\n", s.Peers)
		fmt.Fprintf(w, "Roots:\t%d\n", s.Roots)
		fmt.Fprintf(w, "WHOIS Queued:\t%d\n", s.WhoisQueued)

		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatPeer(p peerView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(p)
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Address:\t%s\n", p.Address)
		fmt.Fprintf(w, "Is Root:\t%t\n", p.IsRoot)
		fmt.Fprintf(w, "Packets Sent:\t%d\n", p.PacketsSent)
		fmt.Fprintf(w, "Packets Received:\t%d\n", p.PacketsReceived)
		fmt.Fprintf(w, "Packets Forwarded:\t%d\n", p.PacketsForwarded)

		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatRoots(roots []rootSetView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(roots)
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tMEMBERS")

		for _, r := range roots {
			fmt.Fprintf(w, "%s\t%d\t%d\n", r.Name, r.Version, len(r.Members))
		}

		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data), nil
}
