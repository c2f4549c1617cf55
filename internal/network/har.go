package network

import (
	"sort"
	"time"

	"github.com/ahrdadan/tabpilot/internal/browser"
)

// HAR 1.2 document shapes. Only the fields the capture pipeline can
// populate are emitted; the format tolerates absent optional blocks.

type HARDocument struct {
	Log HARLog `json:"log"`
}

type HARLog struct {
	Version string     `json:"version"`
	Creator HARCreator `json:"creator"`
	Entries []HAREntry `json:"entries"`
}

type HARCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type HAREntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        HARResponse `json:"response"`
	Timings         HARTimings  `json:"timings"`
}

type HARRequest struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []HARHeader `json:"headers"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int         `json:"bodySize"`
}

type HARResponse struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []HARHeader `json:"headers"`
	Content     HARContent  `json:"content"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

type HARContent struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

type HARHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type HARTimings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// Export renders the filtered view of a session's entries as a HAR 1.2
// document.
func (m *Monitor) Export(sessionID string) HARDocument {
	entries := m.Entries(sessionID)

	doc := HARDocument{
		Log: HARLog{
			Version: "1.2",
			Creator: HARCreator{Name: m.creator.Name, Version: m.creator.Version},
			Entries: make([]HAREntry, 0, len(entries)),
		},
	}

	for _, rec := range entries {
		doc.Log.Entries = append(doc.Log.Entries, harEntry(rec))
	}
	return doc
}

func harEntry(rec browser.RequestRecord) HAREntry {
	ms := float64(rec.Duration().Microseconds()) / 1000.0
	return HAREntry{
		StartedDateTime: rec.Start.UTC().Format(time.RFC3339Nano),
		Time:            ms,
		Request: HARRequest{
			Method:      rec.Method,
			URL:         rec.URL,
			HTTPVersion: "HTTP/1.1",
			Headers:     harHeaders(rec.Headers),
			HeadersSize: -1,
			BodySize:    -1,
		},
		Response: HARResponse{
			Status:      rec.Status,
			StatusText:  rec.ErrorText,
			HTTPVersion: "HTTP/1.1",
			Headers:     harHeaders(rec.RespHeaders),
			Content:     HARContent{Size: rec.Size, MimeType: rec.MimeType},
			HeadersSize: -1,
			BodySize:    rec.Size,
		},
		Timings: HARTimings{Send: 0, Wait: ms, Receive: 0},
	}
}

func harHeaders(h map[string]string) []HARHeader {
	out := make([]HARHeader, 0, len(h))
	for name, value := range h {
		out = append(out, HARHeader{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
