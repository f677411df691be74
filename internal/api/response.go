package api

import (
	"bytes"
	"encoding/json"
	"strings"

	"codeberg.org/mutker/excavatorctl/internal/errors"
)

// WorkerListResponse is the decoded reply to worker.list.
type WorkerListResponse struct {
	ID      int             `json:"id"`
	Workers []Worker        `json:"workers"`
	Error   json.RawMessage `json:"error"`
}

type Worker struct {
	WorkerID   int              `json:"worker_id"`
	DeviceID   int              `json:"device_id"`
	DeviceUUID string           `json:"device_uuid"`
	Algorithms []AlgorithmSpeed `json:"algorithms"`
}

type AlgorithmSpeed struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Speed float64 `json:"speed"`
}

// ParseWorkerList decodes a worker.list response. A payload that is not
// JSON, lacks the workers member, or reports a non-null error is malformed.
func ParseWorkerList(raw string) (*WorkerListResponse, error) {
	errFactory := errors.New()

	var resp WorkerListResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return nil, errFactory.Wrap(ErrMalformedResponse, err)
	}

	if remote := bytes.TrimSpace(resp.Error); len(remote) > 0 && !bytes.Equal(remote, []byte("null")) {
		return nil, errFactory.WithData(ErrRemote, string(remote))
	}

	if resp.Workers == nil {
		return nil, errFactory.WithData(ErrMalformedResponse, "missing workers")
	}

	return &resp, nil
}
