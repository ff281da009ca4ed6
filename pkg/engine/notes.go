package engine

import (
	"encoding/json"
	"strconv"
)

// auditNotes returns the operation-specific audit notes of item as a JSON object, or "" when
// the operation records none. Empty values are omitted.
func auditNotes(item *WorkItem) string {
	notes := make(map[string]string)
	put := func(key, value string) {
		if value != "" {
			notes[key] = value
		}
	}

	switch item.Action() {
	case Action{KindModule, OperationCreate}:
		if m := item.Module; m != nil {
			put("template", m.Template)
			put("type", m.Type)
		}
	case Action{KindHost, OperationCreate}:
		if h := item.Host; h != nil {
			put("env", h.Env)
			put("size", h.Size)
			put("reason", h.Reason)
		}
	case Action{KindHost, OperationDeploy}:
		if h := item.Host; h != nil {
			put("version", h.Version)
			put("reason", h.Reason)
		}
	case Action{KindHost, OperationRestart}:
		if h := item.Host; h != nil {
			put("reason", h.Reason)
		}
	case Action{KindEndpoint, OperationCreate}, Action{KindEndpoint, OperationUpdate}:
		if e := item.Endpoint; e != nil {
			put("protocol", e.Protocol)
			put("vip_port", strconv.Itoa(e.VIPPort))
			put("service_port", strconv.Itoa(e.ServicePort))
			put("external", strconv.FormatBool(e.External))
		}
	}

	if len(notes) == 0 {
		return ""
	}

	// map keys marshal in sorted order
	data, err := json.Marshal(notes)
	if err != nil {
		return ""
	}
	return string(data)
}
