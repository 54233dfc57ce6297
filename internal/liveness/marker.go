package liveness

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// Marker is the on-disk lock marker format: the holder pid on the first
// line, followed by optional JSON metadata. The metadata carries the
// holder's start time so a recycled pid is not mistaken for the holder.
type Marker struct {
	PID       int
	StartUnix int64
}

type markerMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// ReadMarker parses a lock marker file.
func ReadMarker(path string) (Marker, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	pidLine, rest, _ := strings.Cut(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return Marker{}, err
	}
	m := Marker{PID: pid}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		var meta markerMeta
		if err := json.Unmarshal([]byte(rest), &meta); err == nil {
			m.StartUnix = meta.StartUnix
		}
	}
	return m, nil
}

// Encode renders the marker in its file format.
func (m Marker) Encode() []byte {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(m.PID))
	sb.WriteByte('\n')
	if m.StartUnix > 0 {
		meta, _ := json.Marshal(markerMeta{StartUnix: m.StartUnix})
		sb.Write(meta)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}
