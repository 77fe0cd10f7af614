package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func ItemStatusKey(itemID uuid.UUID) string {
	return fmt.Sprintf("queue:item:%s", itemID)
}

func WorkflowStatusKey(workflowID uuid.UUID) string {
	return fmt.Sprintf("workflow:%s", workflowID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
