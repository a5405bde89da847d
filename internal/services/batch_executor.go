package services

import (
	"context"
	"log"

	"agenticdebugger/internal/models"
)

// BatchExecutor runs command lists strictly in order
type BatchExecutor struct {
	executor *CommandExecutor
}

// NewBatchExecutor creates a batch executor over executor
func NewBatchExecutor(executor *CommandExecutor) *BatchExecutor {
	return &BatchExecutor{executor: executor}
}

// Execute runs every entry. An entry that fails validation counts as a failed
// result without reaching the engine. With StopOnError the first failure ends
// the batch and Results holds only the entries attempted.
func (b *BatchExecutor) Execute(ctx context.Context, req models.BatchRequest) models.BatchResponse {
	resp := models.BatchResponse{Results: make([]models.CommandResponse, 0, len(req.Commands))}

	for i, entry := range req.Commands {
		var result models.CommandResponse

		cmd, err := models.NewCommand(entry)
		if err != nil {
			result = models.CommandResponse{OK: false, Action: entry.Action, Message: err.Error()}
		} else {
			result = b.executor.Execute(ctx, cmd)
		}

		resp.Results = append(resp.Results, result)
		if result.OK {
			resp.SuccessCount++
			continue
		}
		resp.FailureCount++
		if req.StopOnError {
			log.Printf("⏹️  [BATCH] Stopping at entry %d/%d (%s): %s", i+1, len(req.Commands), entry.Action, result.Message)
			break
		}
	}

	resp.OK = resp.FailureCount == 0
	return resp
}
