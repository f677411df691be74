package api

import (
	"encoding/json"
	"strconv"
)

const (
	MethodWorkersReset      = "workers.reset"
	MethodWorkerList        = "worker.list"
	MethodPrintEfficiencies = "worker.print.efficiencies"
)

// Command is one request understood by the worker's API.
type Command struct {
	ID     int      `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// String encodes the command as a single JSON line without terminator.
func (c Command) String() string {
	if c.Params == nil {
		c.Params = []string{}
	}
	// A struct of ints and strings cannot fail to marshal.
	b, _ := json.Marshal(c)
	return string(b)
}

// WorkersReset resets the speed counters of workers 0..workers-1.
func WorkersReset(workers int) Command {
	params := make([]string, 0, workers)
	for i := 0; i < workers; i++ {
		params = append(params, strconv.Itoa(i))
	}

	return Command{ID: 1, Method: MethodWorkersReset, Params: params}
}

// WorkerList queries per-worker, per-algorithm speeds.
func WorkerList() Command {
	return Command{ID: 123456789, Method: MethodWorkerList}
}

// PrintEfficiencies asks the worker to print and reset its efficiency
// counters. The response carries nothing of interest.
func PrintEfficiencies() Command {
	return Command{ID: 1, Method: MethodPrintEfficiencies}
}
