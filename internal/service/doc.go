// Package service provides the tool registry for the automation bridge.
//
// The registry keeps the catalog of callable tools and executes them by
// name against a session resolved from the session registry.
//
// Components:
//   - Registry: Central tool catalog
//   - Provider: Source of tool specs (name, description, parameters, handler)
//   - Tool discovery with relevance scoring
//
// Features:
//   - Thread-safe tool registration
//   - Handlers wrapped once by the instrumenter at registration
//   - Sessions created on first use, last activity refreshed per call
//   - Intent-based discovery with scoring
//
// Example Usage:
//
//	registry := service.NewRegistry(sessions, instrumenter)
//	registry.Register(automator.NewProvider(cfg, log))
//	result, err := registry.Execute(ctx, "s1", "miniapp.navigate", args)
package service
