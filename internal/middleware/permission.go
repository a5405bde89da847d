package middleware

import (
	"encoding/json"
	"log"
	"strings"

	"agenticdebugger/internal/models"
	"agenticdebugger/internal/permissions"

	"github.com/gofiber/fiber/v2"
)

// PolicySource returns the policy in effect
type PolicySource interface {
	Current() permissions.Policy
}

// Permissions gates every request with the current policy. For /command and
// /batch the body is parsed here so the action can be resolved before the
// handler runs: malformed JSON is a 400, an unknown action is denied (403),
// and field validation is left to the handler.
func Permissions(policies PolicySource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		policy := policies.Current()
		path := strings.ToLower(c.Path())
		if len(path) > 1 {
			path = strings.TrimRight(path, "/")
		}

		var decision permissions.Decision
		if c.Method() == fiber.MethodPost && permissions.IsCommandRoute(path) {
			actions, err := requestedActions(path, c.Body())
			if err != nil {
				return err
			}
			decision = permissions.EvaluateActions(policy, actions...)
		} else {
			decision = permissions.Evaluate(policy, c.Method(), path)
		}

		if !decision.Allowed {
			log.Printf("🚫 [PERMISSIONS] Denied %s %s: %s", c.Method(), path, decision.Reason)
			return fiber.NewError(fiber.StatusForbidden, decision.Reason)
		}
		return c.Next()
	}
}

// requestedActions extracts the action tags of a command or batch body
func requestedActions(path string, body []byte) ([]string, error) {
	if path == "/batch" {
		var req models.BatchRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
		}
		actions := make([]string, len(req.Commands))
		for i, cmd := range req.Commands {
			actions[i] = cmd.Action
		}
		return actions, nil
	}

	var req models.CommandRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	if strings.TrimSpace(req.Action) == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "action is required")
	}
	return []string{req.Action}, nil
}
