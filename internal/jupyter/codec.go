package jupyter

// Classification is the result of routing one decoded message against a
// PendingExecution's OutputBuffer (spec.md §4.E).
type Classification struct {
	// Terminal is true if this message completes correlation for its
	// parent msg_id (execute_reply only).
	Terminal bool
	// Liveness is true for status (busy/idle) messages: they update
	// liveness but are never terminal for correlation.
	Liveness bool
	// Unroutable is true when the message could not be classified at all
	// (unknown msg_type); per spec.md §7 this is a ProtocolError: logged
	// and dropped, never surfaced unless it prevents correlation.
	Unroutable bool
}

// Apply classifies msg by msg_type and folds its content into buf. It
// never blocks and never returns an error: malformed individual fields are
// simply skipped, matching spec.md §7's ProtocolError policy (dropped, not
// propagated, unless they prevent correlation — which Apply itself cannot
// judge, since correlation happens one layer up in the dispatcher).
func Apply(msg Message, buf *OutputBuffer) Classification {
	switch msg.Header.MsgType {
	case "stream":
		name, _ := msg.Content["name"].(string)
		text, _ := msg.Content["text"].(string)
		buf.AppendStream(name, text)
		return Classification{}

	case "display_data", "execute_result":
		if data, ok := msg.Content["data"].(map[string]any); ok {
			buf.AppendDisplayData(data)
		}
		if ec, ok := msg.Content["execution_count"]; ok {
			buf.SetExecutionCount(toInt(ec))
		}
		return Classification{}

	case "error":
		ename, _ := msg.Content["ename"].(string)
		evalue, _ := msg.Content["evalue"].(string)
		var traceback []string
		if tb, ok := msg.Content["traceback"].([]any); ok {
			for _, line := range tb {
				if s, ok := line.(string); ok {
					traceback = append(traceback, s)
				}
			}
		}
		buf.SetError(ExecError{Ename: ename, Evalue: evalue, Traceback: traceback})
		return Classification{}

	case "execute_reply":
		status, _ := msg.Content["status"].(string)
		ec := 0
		if v, ok := msg.Content["execution_count"]; ok {
			ec = toInt(v)
		}
		buf.SetTerminal(status, ec)
		return Classification{Terminal: true}

	case "status":
		return Classification{Liveness: true}

	default:
		return Classification{Unroutable: true}
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
