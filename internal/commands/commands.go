package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"robot-link/internal/control"
	"robot-link/internal/message"
	"robot-link/internal/metrics"
	"robot-link/internal/node"

	logs "github.com/danmuck/smplog"
)

// FlagPayload sets or clears one status flag on a robot.
type FlagPayload struct {
	Flag string `json:"flag"` // lost | fault
	Set  bool   `json:"set"`
}

type StatusResponse struct {
	Node     string              `json:"node"`
	Role     node.Role           `json:"role"`
	State    string              `json:"state"`
	Active   *bool               `json:"active,omitempty"`
	Statuses []node.StatusReport `json:"statuses,omitempty"`
	Control  *node.ControlReport `json:"control,omitempty"`
}

type MetricsResponse struct {
	Node   node.Stats        `json:"node"`
	Events *metrics.Counters `json:"events,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Errorf(err, "[Server] writing response")
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// SetControlHandler replaces the controller's control snapshot.
func SetControlHandler(snapshot *control.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var c message.Control
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !snapshot.Set(c) {
			http.Error(w, "controls inactive, activate first", http.StatusConflict)
			return
		}
		logs.Debugf("[Server] control set to %s", c)
		w.Write([]byte("Control updated"))
	}
}

func ActivateHandler(snapshot *control.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		snapshot.Activate()
		logs.Infof("[Server] controls activated")
		w.Write([]byte("Controls active"))
	}
}

func DeactivateHandler(snapshot *control.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		snapshot.Deactivate()
		logs.Infof("[Server] controls deactivated")
		w.Write([]byte("Controls inactive"))
	}
}

// SetFlagHandler sets or clears a robot status flag.
func SetFlagHandler(status *control.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var payload FlagPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var flag int32
		switch payload.Flag {
		case "lost":
			flag = message.FlagLost
		case "fault":
			flag = message.FlagFault
		default:
			http.Error(w, fmt.Sprintf("unknown flag %q", payload.Flag), http.StatusBadRequest)
			return
		}
		if payload.Set {
			status.SetFlag(flag)
		} else {
			status.ClearFlag(flag)
		}
		w.Write([]byte("Flags updated"))
	}
}

// StatusHandler reports what the node last heard: per-robot status on a
// controller, the last control on a robot.
func StatusHandler(n node.INode, snapshot *control.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		resp := StatusResponse{
			Node:  n.Address().String(),
			Role:  n.Role(),
			State: n.State().String(),
		}
		if snapshot != nil {
			active := snapshot.Active()
			resp.Active = &active
		}
		switch n.Role() {
		case node.RoleController:
			resp.Statuses = n.LatestStatuses()
		default:
			if c, ok := n.LatestControl(); ok {
				resp.Control = &c
			}
		}
		writeJSON(w, resp)
	}
}

func PeersHandler(n node.INode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, n.Peers())
	}
}

// MetricsHandler reports the node's own counters and, when a collector is
// wired, the event-bus totals.
func MetricsHandler(n node.INode, coll *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		resp := MetricsResponse{Node: n.Stats()}
		if coll != nil {
			snap := coll.Snapshot()
			resp.Events = &snap
		}
		writeJSON(w, resp)
	}
}
