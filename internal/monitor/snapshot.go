package monitor

import (
	"encoding/json"
	"net"
	"os"
)

// snapshotFile persists CoreState as a single JSON document at a well-known
// path. The file is overwritten wholesale on each save; there are no partial
// updates.
type snapshotFile struct {
	path string
}

// load reads the previous snapshot. A missing or unparseable file is treated
// as absence, not an error: the caller starts fresh.
func (s snapshotFile) load() (CoreState, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return CoreState{}, false
	}
	var state CoreState
	if err := json.Unmarshal(data, &state); err != nil {
		return CoreState{}, false
	}
	return state, true
}

func (s snapshotFile) save(state CoreState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// hostIdentity returns the hostname and a routable local address for the
// snapshot's host identity fields. Failures degrade to "unknown".
func hostIdentity() (hostname, localIP string) {
	hostname = "unknown"
	localIP = "unknown"

	if h, err := os.Hostname(); err == nil {
		hostname = h
	}

	// A UDP "connection" performs no handshake; this only asks the kernel
	// which source address it would route from.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return hostname, localIP
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		localIP = addr.IP.String()
	}
	return hostname, localIP
}
