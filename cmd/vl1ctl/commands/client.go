package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// statusView mirrors adminserver's /v1/status response shape.
type statusView struct {
	Address     string `json:"address"`
	InstanceID  string `json:"instance_id"`
	Online      bool   `json:"online"`
	Peers       int    `json:"peers"`
	Roots       int    `json:"roots"`
	WhoisQueued int    `json:"whois_queued"`
	IsRoot      bool   `json:"is_root"`
}

// peerView mirrors adminserver's /v1/peers response shape (one entry).
type peerView struct {
	Address          string `json:"address"`
	IsRoot           bool   `json:"is_root"`
	PacketsSent      uint64 `json:"packets_sent"`
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsForwarded uint64 `json:"packets_forwarded"`
}

// rootSetView mirrors adminserver's /v1/roots response shape (one entry).
type rootSetView struct {
	Name    string   `json:"name"`
	Version uint64   `json:"version"`
	Members []string `json:"members"`
}

func getStatus() (statusView, error) {
	var v statusView
	err := getJSON("/v1/status", &v)
	return v, err
}

func getPeer(address string) (peerView, error) {
	var v peerView
	path := "/v1/peers"
	if address != "" {
		path += "?address=" + address
	}
	err := getJSON(path, &v)
	return v, err
}

func getRoots() ([]rootSetView, error) {
	var v []rootSetView
	err := getJSON("/v1/roots", &v)
	return v, err
}

func getJSON(path string, v any) error {
	resp, err := httpClient.Get(adminURL(path))
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request %s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
