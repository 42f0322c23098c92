package api

import (
	"fmt"
	"time"

	"fieldops/internal/model"
)

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.Day != "" {
		if _, err := time.Parse("2006-01-02", req.Day); err != nil {
			return fmt.Errorf("invalid day %q: want YYYY-MM-DD", req.Day)
		}
	}
	for _, id := range req.WorkerIDs {
		if id == "" {
			return fmt.Errorf("workerIds must not contain empty ids")
		}
	}
	return nil
}
