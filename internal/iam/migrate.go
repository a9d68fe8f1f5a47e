package iam

import (
	"context"

	"github.com/torbobase/core/internal/agentregistry"
	"go.uber.org/zap"
)

// AutoMigrateExistingAgents iterates every agent in the registry,
// registers any not yet known to IAM, applies the access-level default
// grant table with grantor "migration", and recomputes risk score. It is
// meant to run once at startup after both the registry and the engine are
// bootstrapped.
func (e *Engine) AutoMigrateExistingAgents(ctx context.Context, registry *agentregistry.Registry) error {
	for _, agent := range registry.List() {
		if err := e.Register(ctx, agent.ID, "torbobase", "agent persona"); err != nil {
			e.logger.Error("iam: auto-migrate register failed", zap.String("agent", agent.ID), zap.Error(err))
			continue
		}

		for _, grant := range grantsForLevel(int(agent.AccessLevel)) {
			if err := e.Grant(ctx, agent.ID, grant.Resource, grant.Actions, "migration"); err != nil {
				e.logger.Error("iam: auto-migrate grant failed",
					zap.String("agent", agent.ID), zap.String("resource", grant.Resource), zap.Error(err))
			}
		}

		if _, err := e.CalculateRisk(ctx, agent.ID); err != nil {
			e.logger.Error("iam: auto-migrate risk calculation failed", zap.String("agent", agent.ID), zap.Error(err))
		}
	}
	return nil
}
